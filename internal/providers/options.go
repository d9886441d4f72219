package providers

// StringOption reads a string field from a provider config map, returning
// fallback when the field is absent or not a string.
func StringOption(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// FloatOption reads a numeric field from a provider config map. YAML and
// JSON decoders may deliver numbers as float64 or int.
func FloatOption(config map[string]any, key string, fallback float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

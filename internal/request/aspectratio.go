package request

// AspectRatios are the five presentation ratios the generation and edit
// endpoints accept.
var AspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

// DefaultAspectRatio is used when a caller does not pick one.
const DefaultAspectRatio = "1:1"

// IsSupportedAspectRatio reports whether ratio is one of the supported values.
func IsSupportedAspectRatio(ratio string) bool {
	for _, supported := range AspectRatios {
		if ratio == supported {
			return true
		}
	}
	return false
}

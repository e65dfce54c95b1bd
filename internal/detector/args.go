package detector

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/StinkyLord/depscan/internal/errors"
)

// ParseDetectorArgs turns "key=value" tokens into a map. Tokens without "=" are
// ignored and later keys overwrite earlier ones.
func ParseDetectorArgs(args []string) map[string]string {
	out := make(map[string]string, len(args))

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}

		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return out
}

// DecodeArgs fills the options struct out with the arguments addressed to the
// given detector, i.e. the keys of the form "<detectorID>.<Field>". Values are
// converted weakly, so "true" decodes into a bool field. Fields without a
// matching argument keep their current value.
func DecodeArgs(args map[string]string, detectorID string, out any) error {
	prefix := detectorID + "."
	scoped := map[string]any{}

	for key, value := range args {
		if name, ok := strings.CutPrefix(key, prefix); ok && name != "" {
			scoped[name] = value
		}
	}

	if len(scoped) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.New(err)
	}

	if err := decoder.Decode(scoped); err != nil {
		return errors.Errorf("decoding arguments for detector %s: %w", detectorID, err)
	}

	return nil
}

package device

import "github.com/ghalamif/TelemFlow/internal/ports"

// NewOpener returns a TransportOpener for cfg, picking the adapter from the
// port's form.
func NewOpener(cfg Config) ports.TransportOpener {
	return func() (ports.Transport, error) {
		if cfg.IsNetwork() {
			return OpenTCP(cfg)
		}
		return OpenSerial(cfg)
	}
}

package poller

import (
	"context"
	"fmt"

	"github.com/KevinKickass/IOLinkBridge/internal/iolink"
	"github.com/KevinKickass/IOLinkBridge/internal/sensors"
	"go.uber.org/zap"
)

// MapPorts fragt jeden Port nach seinem Produktnamen. All-or-nothing: any
// transport failure or unknown product name fails the whole scan.
func (p *Poller) MapPorts(ctx context.Context) (PortAssignment, error) {
	assignment := make(PortAssignment, 0, p.cfg.PortCount)

	for port := 1; port <= p.cfg.PortCount; port++ {
		value, err := p.fetcher.FetchValue(ctx, iolink.ProductNameAddress(port))
		if err != nil {
			return nil, fmt.Errorf("port %d product name: %w", port, err)
		}

		var model sensors.Model
		if value.Present {
			model, err = p.catalog.Lookup(value.Raw)
		}
		if !value.Present || err != nil {
			p.logger.Error("Unidentified sensor, port map rejected",
				zap.Int("port", port),
				zap.String("product_name", value.String()),
				zap.Strings("catalog", p.catalog.Names()))
			return nil, &sensors.UnidentifiedSensorError{ProductName: value.Raw, Port: port}
		}

		assignment = append(assignment, Assignment{
			Port:        port,
			ProductName: value.Raw,
			Model:       model,
		})
	}

	return assignment, nil
}

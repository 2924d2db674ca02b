package plant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/plantclient/internal/codec"
	"github.com/rickgao/plantclient/internal/transport"
)

// ListSystems asks a gateway which systems it serves. It needs no login and
// uses its own short-lived connection.
func ListSystems(ctx context.Context, conn transport.Transport, c codec.Codec, timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer conn.Close()

	data, err := c.Encode(codec.NewFrame(codec.RequestSystemInfo).With(codec.FieldUserMsg, []string{"system_info"}))
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}

	for {
		data, err := conn.Receive(ctx, timeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: system info", ErrResponseTimeout)
			}
			return nil, fmt.Errorf("list systems: %w", err)
		}
		f, err := c.Decode(data)
		if err != nil || f.TemplateID != codec.ResponseSystemInfo {
			continue
		}
		if err := ResponseError(f); err != nil {
			return nil, err
		}
		return f.Strings("system_name"), nil
	}
}

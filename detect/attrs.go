package detect

import (
	"log/slog"

	"github.com/happyhackingspace/scdenorm/internal/optim"
)

func autoAttrs(rows int, res *optim.Result) []slog.Attr {
	return []slog.Attr{
		slog.Int("rows", rows),
		slog.Float64("loss", res.F),
		slog.Int("iterations", res.Iterations),
		slog.String("status", res.Status),
	}
}

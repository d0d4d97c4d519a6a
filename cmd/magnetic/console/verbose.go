package console

import (
	"context"

	"github.com/mklimuk/magnetic/snsctx"
)

// SetVerbose enables adapter traffic dumps for calls made with the returned context.
func SetVerbose(parent context.Context, value bool) context.Context {
	return snsctx.SetVerbose(parent, value)
}

func IsVerbose(ctx context.Context) bool {
	return snsctx.IsVerbose(ctx)
}

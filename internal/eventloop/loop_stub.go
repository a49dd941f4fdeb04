//go:build !linux

package eventloop

import "context"

// Loop is a placeholder on platforms without epoll support.
type Loop struct{}

// New reports that the platform is unsupported.
func New(cfg Config) (*Loop, error) {
	return nil, ErrUnsupported
}

func (l *Loop) Port() int { return 0 }

func (l *Loop) Run(ctx context.Context) error { return ErrUnsupported }

func (l *Loop) Close() {}

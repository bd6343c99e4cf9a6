package system

import "context"

// Service is a background component started with the process and stopped on
// shutdown, such as the email workers or the job scheduler. Stop must be safe
// to call after a failed Start.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

package call

import "errors"

var (
	// ErrDoctorOffline means the target has no presence. Local validation,
	// nothing was written to the store.
	ErrDoctorOffline = errors.New("doctor is not online")

	// ErrNoDeliveryToken means the target has no push-delivery address, so
	// phase 2 could never reach them. Local validation, nothing written.
	ErrNoDeliveryToken = errors.New("doctor has no delivery token")

	// ErrDoctorUnreachable is the single terminal failure the user sees:
	// the doctor rejected the call or both phases ran out.
	ErrDoctorUnreachable = errors.New("could not reach doctor")

	// ErrSuperseded means a newer call attempt replaced this one.
	ErrSuperseded = errors.New("call attempt superseded")
)

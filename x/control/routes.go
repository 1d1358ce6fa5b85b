package control

// Route patterns for the control-plane surface.
const (
	routeStartMonitoring = "/v1/monitor/{targetID}"
	routeStopMonitoring  = "/v1/monitor/{targetID}"
	routeStatus          = "/v1/status"
	routeMetricsStream   = "/v1/metrics/stream"

	routeInitiateAcquisition = "/v1/acquisition"
	routeCartStatus          = "/v1/cart/{cartID}"
	routeCompletePayment     = "/v1/cart/{cartID}/payment"
	routeReleaseCart         = "/v1/cart/{cartID}/release"
)

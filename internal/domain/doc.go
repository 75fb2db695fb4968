// Package domain models river streamflow series, forecast ensembles, and the
// alert codes computed from them.
//
// # Data Sources
//
// Simulated history and forecast ensembles come from the GEOGloWS ECMWF
// streamflow service, keyed by drainage reach ID ("comid"). Observed discharge
// comes from gauging stations published on HydroShare, keyed by station code
// ("codigo"). A station row links one gauge to one reach; reaches without a
// gauge are evaluated on raw model output.
//
// # Series Conventions
//
// Historical series are daily. Forecast ensembles are sub-daily (1h, 3h, or 6h
// steps over a 15-day horizon) and carry 52 columns:
//
//	ensemble_01_m^3/s ... ensemble_51_m^3/s   perturbed members
//	ensemble_52_m^3/s                          high-resolution deterministic run
//
// The high-resolution member is shorter than the perturbed ones, so its column
// is NaN past its horizon. Missing cells are NaN, never zero.
//
// Calendar grouping (days, months, years) is always done in UTC. See [Day].
//
// Simulated flows can be slightly negative from routing artifacts. The
// historical simulation is clamped to 0 before use. Forecast members and
// observed flows are taken as published.
//
// # Alert Codes
//
// High-flow codes name the largest return period whose threshold a sufficient
// share of the ensemble exceeds:
//
//	R0 < R2 < R5 < R10 < R25 < R50 < R100
//
// Low-flow codes name how many forecast days the ensemble median spends below
// the 7Q10-style low-flow threshold:
//
//	R0 < lower_1 < lower_3 < lower_7
//
// The two families never mix in one evaluation. Low flow is only evaluated
// when the high-flow result is R0.
package domain

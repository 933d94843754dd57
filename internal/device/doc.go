// Package device is the registry of plant sensors and their owners.
//
// Registration resolves the device's coordinates to a weather location
// through a Geolocator and stores the result in SQLite. Lookup answers the
// ownership question used to authorise reading queries: it returns the
// caller's devices matching an ID, so an empty list means "not yours".
package device

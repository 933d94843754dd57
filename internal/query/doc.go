// Package query serves a device's sensor readings to its owner.
//
// A request passes through four stages in a fixed order: the caller's
// identity is read from the context, device ownership is confirmed with
// the device registry, the filter is shaped into a store query, and the
// store page is returned with an opaque continuation token.
//
// Ownership is checked before the filter is even parsed so that a caller
// who does not own a device learns nothing about its data.
//
// Page tokens are base64 JSON of the store's last evaluated key. They are
// bound to the device they were issued for.
package query

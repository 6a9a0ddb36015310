// Package hostrt provides the host module runtime the installer drives.
//
// Memory keeps artifacts in memory and counts every lifecycle event in an
// EventCounter, which start tasks read to gate their retries.
package hostrt

// ABOUTME: Product and version constants
// ABOUTME: Reported in discovery TXT records and the transport hello
package version

const (
	// Version is the release of this build
	Version = "0.3.0"

	// Product names the software in announcements
	Product = "resonate-stream"

	// Manufacturer is reported alongside Product
	Manufacturer = "Resonate"

	// Interfaces is the version of the sink method/signal surface
	Interfaces uint16 = 1
)

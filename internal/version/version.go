// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package version holds build information shared by the minisync binaries.
package version

var (
	// Revision is set at build time via -ldflags
	Revision = "devel"

	// Date is set at build time via -ldflags
	Date = "unknown"
)

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/fnindex/internal/dagger"
)

// Build and return a directory holding the fnindex binary for the build
// container's platform. CGO is required, so there is no cross-compile matrix.
func (f *Fnindex) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	const path = "bin/"

	build := f.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/fnindex"})

	return dag.Directory().WithDirectory(path, build.Directory(path))
}

// BuildRelease compiles a versioned release binary with embedded version info
func (f *Fnindex) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/fnindex/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/fnindex/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/fnindex/pkg/utils.Buildtime=%s'", buildtime),
	}

	return f.Build(ctx, strings.Join(ldflags, " "))
}

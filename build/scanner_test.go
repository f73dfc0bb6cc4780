package build_test

import (
	"strings"
	"testing"

	"github.com/aquasecurity/trivy/pkg/report"
	"github.com/aquasecurity/trivy/pkg/types"
	"github.com/forgeci/forge/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReport(t *testing.T) {
	r := &report.Report{
		Metadata: report.Metadata{
			ImageID: "sha256:foobar",
		},
		Results: []report.Result{
			{
				Type: "debian",
				Vulnerabilities: []types.DetectedVulnerability{
					{
						PkgName:          "openssl",
						InstalledVersion: "1.1.1d-0",
						FixedVersion:     "1.1.1d-1",
					},
				},
			},
			{
				Type: "alpine",
			},
		},
	}

	s, err := build.RenderReport(r)
	require.NoError(t, err)
	assert.Contains(t, s, "sha256:foobar")
	assert.Contains(t, s, "openssl")
	assert.Contains(t, s, "No fixable vulnerabilities.")

	// results sorted by type
	assert.Less(t, strings.Index(s, "alpine"), strings.Index(s, "debian"))
}

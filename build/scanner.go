package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/template"

	"github.com/aquasecurity/trivy/pkg/report"
	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/oci"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/opencontainers/runtime-spec/specs-go"
)

// DefaultScannerImage runs trivy with a pre-populated vulnerability DB.
const DefaultScannerImage = "docker.io/aquasec/trivy:latest"

// Scanner runs trivy against an exported docker-archive tar, inside a
// containerd container.
type Scanner struct {
	log          logr.Logger
	containerd   *containerd.Client
	scannerImage string
}

func NewScanner(log logr.Logger, ctr *containerd.Client, scannerImage string) *Scanner {
	if scannerImage == "" {
		scannerImage = DefaultScannerImage
	}
	return &Scanner{
		log:          log,
		containerd:   ctr,
		scannerImage: scannerImage,
	}
}

// Scan runs trivy on the image tar at tarPath and decodes its JSON report.
func (s *Scanner) Scan(ctx context.Context, tarPath string) (*report.Report, error) {
	ctr, err := s.startContainer(ctx, tarPath)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	defer func() {
		if err := ctr.Close(context.Background()); err != nil {
			s.log.Error(err, "failed to clean up scan container")
		}
	}()

	statusCh, err := ctr.task.Wait(ctx)
	if err != nil {
		return nil, err
	}
	<-statusCh

	var r report.Report
	if err := json.NewDecoder(ctr.stdout).Decode(&r); err != nil {
		s.log.Info("scanner output", "stderr", ctr.stderr.String())
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}

type scanContainer struct {
	container containerd.Container
	task      containerd.Task
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
}

func (s *Scanner) startContainer(ctx context.Context, tarPath string) (*scanContainer, error) {
	scannerImg, err := s.containerd.Pull(ctx, s.scannerImage, containerd.WithPullUnpack)
	if err != nil {
		return nil, err
	}
	s.log.Info("starting scan container", "target", tarPath, "scanner_image", scannerImg.Name())

	containerName := fmt.Sprintf("forge-scan-%s", uuid.NewString())
	imageSpec := []oci.SpecOpts{
		oci.WithProcessArgs(
			"trivy",
			"--quiet",
			"image",
			"--ignore-unfixed",
			"--format", "json",
			"--input", filepath.Join("/input", filepath.Base(tarPath)),
		),
		oci.WithEnv([]string{"TRIVY_NEW_JSON_SCHEMA=true"}),
		oci.WithMounts([]specs.Mount{
			{
				Type:        "rbind",
				Source:      filepath.Dir(tarPath),
				Destination: "/input",
				Options:     []string{"rbind", "ro"},
			},
		}),
	}

	ctr, err := s.containerd.NewContainer(ctx, containerName, containerd.WithNewSnapshot(containerName, scannerImg), containerd.WithNewSpec(imageSpec...))
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	task, err := ctr.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		_ = ctr.Delete(ctx)
		return nil, err
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = ctr.Delete(ctx)
		return nil, err
	}
	return &scanContainer{
		container: ctr,
		task:      task,
		stdout:    &stdout,
		stderr:    &stderr,
	}, nil
}

func (c *scanContainer) Close(ctx context.Context) (retErr error) {
	if err := c.task.Kill(ctx, syscall.SIGKILL); err != nil && !strings.Contains(err.Error(), "process already finished") {
		retErr = err
	}
	if _, err := c.task.Delete(ctx); err != nil {
		retErr = err
	}
	if err := c.container.Delete(ctx); err != nil {
		retErr = err
	}
	return
}

var reportMarkdown = template.Must(template.New("report").Parse(`
# Scan Results

` + "`" + `{{.Metadata.ImageID}}` + "`" + `

{{with .Metadata.OS}}{{.Family}} {{.Name}} {{if .Eosl}}(end of life){{end}}{{end}}

{{range $result := .Results}}
### {{$result.Type}}

{{if $result.Vulnerabilities}}
{{$result.Vulnerabilities | len}} fixable vulnerabilities found

| Package | Version | FixedVersion | Severity |
|---------|---------|--------------|----------|
{{range $result.Vulnerabilities}}| {{.PkgName}} | {{.InstalledVersion}} | {{.FixedVersion}} | {{.Severity}} |
{{end}}
{{else}}
No fixable vulnerabilities.
{{end}}
{{end}}
`))

// RenderReport formats a trivy report as markdown, results sorted by type.
func RenderReport(r *report.Report) (string, error) {
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Type < r.Results[j].Type })

	var buf bytes.Buffer
	if err := reportMarkdown.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

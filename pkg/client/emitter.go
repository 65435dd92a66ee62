package client

import (
	"fmt"

	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

// Emitter is an interface for emitting results.
type Emitter interface {
	// OnStart is called when a step starts.
	OnStart(kind spec.StepKind)
	// OnResult is called when a step completes.
	OnResult(Result)
	// OnError is called on errors.
	OnError(kind spec.StepKind, err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
	// OnSummary is called when all the steps completed successfully.
	OnSummary(result model.TestResult)
}

// HumanReadable prints human-readable output to stdout.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
}

// progress is the completion percentage after each step.
var progress = map[spec.StepKind]int{
	spec.StepPing:     0,
	spec.StepDownload: 50,
	spec.StepUpload:   100,
}

// OnStart prints the step being started.
func (HumanReadable) OnStart(kind spec.StepKind) {
	fmt.Printf("Starting %s test\n", kind)
}

// OnResult prints the result of a single step.
func (HumanReadable) OnResult(r Result) {
	switch r.Kind {
	case spec.StepPing:
		fmt.Printf("[%3d%%] ping: %d ms\n", progress[r.Kind], r.PingMS)
	default:
		fmt.Printf("[%3d%%] %s rate: %.2f Mb/s (%d bytes in %.2fs)\n",
			progress[r.Kind], r.Kind, r.Mbps, r.Bytes, r.Elapsed.Seconds())
	}
}

// OnError is called on errors.
func (HumanReadable) OnError(kind spec.StepKind, err error) {
	fmt.Printf("%s test failed: %v\n", kind, err)
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Printf("DEBUG: %s\n", msg)
	}
}

// OnSummary prints the final result.
func (HumanReadable) OnSummary(r model.TestResult) {
	fmt.Println()
	fmt.Printf("Test results (%s):\n", r.Timestamp)
	fmt.Printf("  ping: %d ms\n", r.PingMS)
	fmt.Printf("  download: %.2f Mb/s\n", r.DownloadMbps)
	fmt.Printf("  upload: %.2f Mb/s\n", r.UploadMbps)
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}

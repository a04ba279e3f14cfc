// Package status moves build manifests through their phases.
package status

import (
	"fmt"
	"time"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// previous lists the phase each phase may be entered from.
var previous = map[v1alpha1.BuildPhase]v1alpha1.BuildPhase{
	v1alpha1.BuildPhaseConverted: "",
	v1alpha1.BuildPhaseDone:      v1alpha1.BuildPhaseConverted,
}

// Transition moves b to phase. Phases are entered strictly in order and
// never left backwards.
func Transition(b *v1alpha1.ImageBuild, phase v1alpha1.BuildPhase) error {
	from, ok := previous[phase]
	if !ok {
		return fmt.Errorf("unknown build phase %q", phase)
	}
	if b.Status.Phase != from {
		return fmt.Errorf("cannot transition to %s from phase %q", phase, b.Status.Phase)
	}

	b.Status.Phase = phase
	return nil
}

// TransitionToConverted transitions the build phase to Converted.
// This should be called once the hypervisor wrote its artifacts.
func TransitionToConverted(b *v1alpha1.ImageBuild) error {
	return Transition(b, v1alpha1.BuildPhaseConverted)
}

// TransitionToDone transitions the build phase to Done and stamps the
// completion time.
func TransitionToDone(b *v1alpha1.ImageBuild, now time.Time) error {
	if err := Transition(b, v1alpha1.BuildPhaseDone); err != nil {
		return err
	}
	b.Status.CompletionTimestamp = v1alpha1.Time{Time: now}
	return nil
}

// IsTerminal returns true if the build will not change anymore.
func IsTerminal(phase v1alpha1.BuildPhase) bool {
	return phase == v1alpha1.BuildPhaseDone
}

// IsComplete returns true if the artifacts of a build in phase are all
// written. A Converted build that never reached Done has usable artifacts
// whose ownership may not have been handed over.
func IsComplete(phase v1alpha1.BuildPhase) bool {
	return phase == v1alpha1.BuildPhaseConverted || phase == v1alpha1.BuildPhaseDone
}

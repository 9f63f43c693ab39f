package runtime

import (
	"testing"

	containerd "github.com/containerd/containerd/v2/client"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		status containerd.ProcessStatus
		want   ContainerState
	}{
		{containerd.Running, ContainerRunning},
		{containerd.Paused, ContainerRunning},
		{containerd.Pausing, ContainerRunning},
		{containerd.Stopped, ContainerStopped},
		{containerd.Created, ContainerStopped},
		{containerd.Unknown, ContainerStopped},
	}

	for _, tt := range tests {
		if got := stateOf(tt.status); got != tt.want {
			t.Fatalf("stateOf(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

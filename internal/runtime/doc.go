// Package runtime builds images inside containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon. A base image is either pulled
// from its registry or imported from an OCI archive, unpacked for the target
// platform, and used to start a build container with a fuse-overlayfs
// snapshot and a long-running task.
//
// Each [Container] wraps that task. Commands are exec'd into it directly,
// without a shell, and host files are streamed in as tar archives. When the
// build is done, the snapshot diff is committed as a new layer and exported
// with the runtime contract applied to the image config.
//
// [Backend] adapts a container to the collaborators of the build executor:
// system packages map to apk, language packages to pip, and filesystem
// operations to busybox utilities.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "buildplan", "")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	backend := runtime.NewBackend(rt, "build-airflow", "out")
//	result, err := build.Run(ctx, build.Options{
//	    Plan:    plan.Airflow(),
//	    Backend: backend,
//	    Context: ".",
//	})
package runtime

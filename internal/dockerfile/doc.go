// Package dockerfile converts build plans to and from Dockerfiles.
//
// [Render] writes one instruction per step. [Parse] reads a Dockerfile with
// the BuildKit parser and maps its instructions back onto steps. RUN
// instructions are split on "&&" and each command is classified: apk, pip,
// ln, addgroup, adduser, and chown invocations become their step kinds.
// Packages installed with apk and removed again later in the file become
// transient dependencies; the rest are persistent.
//
// Commands with no step equivalent are skipped with a warning, or rejected
// when [WithStrict] is given.
//
// Example usage:
//
//	f, err := os.Open("Dockerfile")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	p, err := dockerfile.Parse(f, "airflow", dockerfile.WithStrict())
//	if err != nil {
//	    return err
//	}
//
//	b, err := dockerfile.Render(p)
package dockerfile

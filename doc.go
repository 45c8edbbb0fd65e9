// Package ocirepo stores build artifacts in OCI registries.
//
// Each artifact is published as a minimal single-layer image: a gzip tar
// layer holding the file, a config carrying the file's modification time,
// and a Docker V2.2 or OCI manifest. Artifact paths map to repositories and
// tags through a naming strategy.
//
// Basic usage:
//
//	repo, _ := ocirepo.Open("docker://registry.example.com/maven")
//
//	// Publish a file; repeated puts of the same content push nothing
//	repo.Put(ctx, "org/apache/ant/ant/1.10.11/ant-1.10.11.jar", "build/ant.jar")
//
//	// Fetch it back with its original modification time
//	repo.Get(ctx, "org/apache/ant/ant/1.10.11/ant-1.10.11.jar", "/tmp/ant.jar")
//
//	// Skip the download when the local copy is current
//	updated, _ := repo.GetIfNewer(ctx, path, "/tmp/ant.jar", localModTime)
//
//	// Inspect where an artifact lives
//	ref, _ := repo.Resolve("org/apache/ant/ant/1.10.11/ant-1.10.11.jar")
//	fmt.Println(ref) // registry.example.com/maven/org_apache_ant_ant_1_10_11_ant-1_10_11_jar:1.10.11
//
// Errors are *OpError values; test their kind with errors.Is against
// ErrNotFound, ErrInvalidReference, ErrTransferFailed or ErrUnsupported.
package ocirepo

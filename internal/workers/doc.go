/*
Package workers sizes the bounded pools of the media library.

The only hard concurrency bound in the reconciliation core is the number of
simultaneous encoder subprocesses used for snapshot generation. Its default
comes from ForCPU, which reads GOMAXPROCS so that container CPU limits are
respected (runtime.NumCPU reports host CPUs instead):

	k := workers.ForCPU(4) // at most 4, at most one per available CPU

Operators can pin the value with SNAPSHOT_WORKERS; the limit argument still
caps it.
*/
package workers

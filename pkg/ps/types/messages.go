package types

// PayloadKind discriminates the four shapes a WorkerToServer message can
// take. Kept as an explicit tagged union rather than a nested Either, per
// the re-architecture hint: one enum per direction is clearer and faster.
type PayloadKind int

const (
	// PullKind requests the current value for a ParamId.
	PullKind PayloadKind = iota
	// PushKind carries a delta to fold into a ParamId's value.
	PushKind
	// ModelKind carries a bootstrap "Parameter(id, value)" record: the
	// server stores Model as-is, bypassing the update fold entirely.
	ModelKind
	// EomKind is the bootstrap end-of-model marker fanned out to every
	// server partition when a worker partition finishes the model stream.
	EomKind
)

// WorkerToServer is everything a worker partition can address to a
// server partition: a pull, a push, a bootstrap model record, or (during
// bootstrap) an EOM marker.
//
// Generic over both PullP and PushP so the bootstrap ModelKind payload
// (always PullP-shaped, "the parameter itself") and the regular PushKind
// payload (PushP-shaped, "a delta") share one envelope type even in the
// asymmetric variant.
type WorkerToServer[PullP, PushP any] struct {
	WorkerPartition PartitionIndex
	Kind            PayloadKind
	Id              ParamId
	Delta           PushP
	Model           PullP

	// ServerPartition is the explicit routing target for an EomKind
	// message: EOM carries no ParamId, so it cannot be routed by the
	// usual hash-of-id partitioner. One EomKind message is addressed to
	// every server partition (spec.md §4.5.3), and this field is which
	// one this particular copy is for.
	ServerPartition PartitionIndex
}

// ServerToWorkerKind discriminates server-to-worker payloads.
type ServerToWorkerKind int

const (
	// PullAnswerKind carries a served pull's value back to its worker.
	PullAnswerKind ServerToWorkerKind = iota
	// KeepaliveKind is the double-sided-load synthetic EOM pull answer
	// used to keep the iteration loop from looking idle during bulk load.
	// Workers must reject it if it ever reaches on_pull_recv semantics.
	KeepaliveKind
)

// ServerToWorker is everything a server partition can address back to a
// worker partition. WorkerPartition IS the destination: the
// ServerToWorkerPartitioner must route on this field as the identity.
type ServerToWorker[PullP any] struct {
	WorkerPartition PartitionIndex
	Kind            ServerToWorkerKind
	Id              ParamId
	Value           PullP
}

// ModelRecord is one entry of the bootstrap model stream. For single-sided
// load every record is a server-side copy; for double-sided load Side
// discriminates between the server-side replica and the worker-side replica.
type ModelSide int

const (
	ServerSide ModelSide = iota
	WorkerSide
)

type ModelRecord[PullP any] struct {
	Side  ModelSide
	Id    ParamId
	Value PullP
}

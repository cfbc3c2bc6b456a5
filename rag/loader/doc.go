// Package loader reads corpus snapshots produced by the external ingestion
// pipeline and hands them to a chunk store.
//
// A snapshot is either a JSON array of chunks (.json) or one chunk per line
// (.jsonl), using the rag.Chunk wire form:
//
//	{"id": "smi-2024-p3", "text": "...", "dense_vector": [...],
//	 "metadata": {"document_id": "SMI Table FY2024", "page": 3, "fiscal_year": "2024"}}
//
// Missing sparse vectors are computed by the in-memory store on Add; missing
// dense vectors are filled in by the loader's embedder when one is set.
//
//	l := loader.NewSnapshotLoader(embedder, logger)
//	n, err := l.LoadInto(ctx, "corpus.jsonl", store)
package loader

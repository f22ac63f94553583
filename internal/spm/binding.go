// Package spm binds a native SentencePiece engine exposed through the
// spm_c_api.h function contract.
//
// The engine itself is opaque. This package owns the handle lifecycle,
// serializes every foreign call per Processor and copies foreign-allocated
// buffers into Go memory before releasing them through the engine's own free
// functions.
package spm

// Handle is an opaque engine handle returned by spm_processor_new.
// The zero Handle is invalid.
type Handle uintptr

// Binding is the foreign function contract of the engine. Each method maps
// one-to-one onto a C symbol:
//
//	spm_processor_t spm_processor_new(void);
//	void spm_processor_free(spm_processor_t p);
//	int  spm_processor_load(spm_processor_t p, const char* model_path);
//	int  spm_encode(spm_processor_t p, const char* text, int32_t** ids, size_t* size);
//	void spm_ids_free(int32_t* ids);
//	int  spm_decode(spm_processor_t p, const int32_t* ids, size_t size, char** out);
//	void spm_string_free(char* s);
//	int  spm_eos_id(spm_processor_t p);
//	int  spm_bos_id(spm_processor_t p);
//	int  spm_vocab_size(spm_processor_t p);
//
// String arguments are NUL-terminated byte buffers. Buffers written to the
// out parameters belong to the engine until passed back to IDsFree or
// StringFree.
//
// Implementations make no concurrency promises; Processor never issues two
// calls on the same handle at once.
type Binding interface {
	ProcessorNew() Handle
	ProcessorFree(h Handle)
	ProcessorLoad(h Handle, path *byte) int32
	Encode(h Handle, text *byte, ids **int32, size *uintptr) int32
	IDsFree(ids *int32)
	Decode(h Handle, ids *int32, size uintptr, out **byte) int32
	StringFree(s *byte)
	EOSID(h Handle) int32
	BOSID(h Handle) int32
	VocabSize(h Handle) int32
}

package constants

const (
	Salt         = "dfss-ulak-bibliotheca"
	KeySizeBytes = 20 // 160-bit identifiers

	K                 = 20 // Bucket capacity
	ReplacementFactor = 5  // Replacement cache holds K * ReplacementFactor contacts
	Alpha             = 3  // Concurrency parameter
	HeapSize          = K  // Visible size of a lookup heap

	// A full bucket that does not cover the local ID is still split while
	// its depth is not a multiple of TargetDepth (Kademlia paper, section 4.2).
	TargetDepth = 5

	// Address diversity per bucket. 0 disables the limit.
	BucketIPLimit = 2
	BucketSubnet  = 24
)

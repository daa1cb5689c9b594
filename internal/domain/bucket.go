package domain

// TimingBucket classifies how soon after launch a buy happened.
// Buckets are nested: a LE_5M buy also counts toward LE_15M, LE_30M and LE_60M.
type TimingBucket string

const (
	BucketLE5m  TimingBucket = "LE_5M"
	BucketLE15m TimingBucket = "LE_15M"
	BucketLE30m TimingBucket = "LE_30M"
	BucketLE60m TimingBucket = "LE_60M"
	BucketNone  TimingBucket = "NONE"
)

// Buckets lists qualifying buckets from tightest to widest.
var Buckets = []TimingBucket{BucketLE5m, BucketLE15m, BucketLE30m, BucketLE60m}

// String returns the string representation of TimingBucket.
func (b TimingBucket) String() string {
	return string(b)
}

// IsValid checks if the bucket is a known value.
func (b TimingBucket) IsValid() bool {
	return b.Rank() > 0 || b == BucketNone
}

// Qualifies reports whether the bucket counts as an early buy.
func (b TimingBucket) Qualifies() bool {
	return b.Rank() > 0
}

// Contains reports whether a buy in bucket other also counts toward b.
// BucketLE60m contains every qualifying bucket; BucketNone contains nothing.
func (b TimingBucket) Contains(other TimingBucket) bool {
	if !b.Qualifies() || !other.Qualifies() {
		return false
	}
	return other.Rank() <= b.Rank()
}

// Rank orders buckets by window size; zero means not qualifying.
func (b TimingBucket) Rank() int {
	switch b {
	case BucketLE5m:
		return 1
	case BucketLE15m:
		return 2
	case BucketLE30m:
		return 3
	case BucketLE60m:
		return 4
	default:
		return 0
	}
}

package serialization

// EncodingType names the wire encoding of a stored blob.
type EncodingType string

const (
	// EncodingTypeJSON is currently the only supported encoding. The tag is
	// stored next to the data so another encoding can be added without
	// migrating existing rows.
	EncodingTypeJSON EncodingType = "json"
)

// DataBlob is a serialized payload together with its encoding tag.
type DataBlob struct {
	Encoding EncodingType
	Data     []byte
}

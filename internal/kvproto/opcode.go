package kvproto

// Opcode identifies the operation a request frame performs, or the
// operation a response frame is replying to (§6 "External interfaces").
type Opcode uint8

const (
	OpGet              Opcode = 0x00
	OpSet              Opcode = 0x01
	OpAdd              Opcode = 0x02
	OpReplace          Opcode = 0x03
	OpDelete           Opcode = 0x04
	OpIncrement        Opcode = 0x05
	OpDecrement        Opcode = 0x06
	OpAppend           Opcode = 0x0e
	OpPrepend          Opcode = 0x0f
	OpGetReplica       Opcode = 0x83
	OpHello            Opcode = 0x1f
	OpSASLListMechs    Opcode = 0x20
	OpSASLAuth         Opcode = 0x21
	OpSASLStep         Opcode = 0x22
	OpGetErrorMap      Opcode = 0xfe
	OpSelectBucket     Opcode = 0x89
	OpSubdocMultiLookup   Opcode = 0xd0
	OpSubdocMultiMutation Opcode = 0xd1
	OpGetClusterConfig    Opcode = 0xb5
	OpGetCollectionsManifest Opcode = 0xba
	OpGetCollectionID    Opcode = 0xbb
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	case OpAppend:
		return "append"
	case OpPrepend:
		return "prepend"
	case OpGetReplica:
		return "get_replica"
	case OpHello:
		return "hello"
	case OpSASLListMechs:
		return "sasl_list_mechs"
	case OpSASLAuth:
		return "sasl_auth"
	case OpSASLStep:
		return "sasl_step"
	case OpGetErrorMap:
		return "get_error_map"
	case OpSelectBucket:
		return "select_bucket"
	case OpSubdocMultiLookup:
		return "subdoc_multi_lookup"
	case OpSubdocMultiMutation:
		return "subdoc_multi_mutation"
	case OpGetClusterConfig:
		return "get_cluster_config"
	case OpGetCollectionsManifest:
		return "get_collections_manifest"
	case OpGetCollectionID:
		return "get_collection_id"
	}
	return "unsupported"
}

// HelloFeature is a client/server negotiated capability bit, sent as a
// uint16 in the HELLO request/response body (§4.2 "Handshake").
type HelloFeature uint16

const (
	FeatureTLS             HelloFeature = 0x02
	FeatureXattr           HelloFeature = 0x06
	FeatureXerror          HelloFeature = 0x07
	FeatureSelectBucket    HelloFeature = 0x08
	FeatureSnappy          HelloFeature = 0x0a
	FeatureJSON            HelloFeature = 0x0b
	FeatureDuplex          HelloFeature = 0x0c
	FeatureClusterMapNotify HelloFeature = 0x0d
	FeatureAltRequests     HelloFeature = 0x10
	FeatureSyncReplication HelloFeature = 0x11
	FeatureCollections     HelloFeature = 0x12
	FeaturePreserveTTL     HelloFeature = 0x14
	FeatureErrorMap        HelloFeature = 0x0f
)

// FramingExtras per-request/response frame-info ids (§4.1 "Bodies and
// order").
type FrameInfoID uint8

const (
	ReqFrameBarrier         FrameInfoID = 0x00
	ReqFrameDurability      FrameInfoID = 0x01
	ReqFrameDCPStreamID     FrameInfoID = 0x02
	ReqFramePreserveTTL     FrameInfoID = 0x05
	RespFrameServerDuration FrameInfoID = 0x00
	RespFrameErrorContext   FrameInfoID = 0x02
)

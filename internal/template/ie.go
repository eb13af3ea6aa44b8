package template

// EnterpriseFOKUS is the private enterprise number of the vendor information elements.
const EnterpriseFOKUS uint32 = 12325

// VarLen marks a variable-length field.
const VarLen uint16 = 65535

// Field is one information element of a template.
type Field struct {
	Name         string
	EnterpriseID uint32 // 0 = IANA
	Type         uint16
	Length       uint16
}

// Variable reports whether the field is variable length.
func (f Field) Variable() bool { return f.Length == VarLen }

// Enterprise reports whether the field is vendor specific.
func (f Field) Enterprise() bool { return f.EnterpriseID != 0 }

func iana(name string, id, length uint16) Field {
	return Field{Name: name, Type: id, Length: length}
}

func fokus(name string, id, length uint16) Field {
	return Field{Name: name, EnterpriseID: EnterpriseFOKUS, Type: id, Length: length}
}

// IANA information elements.
var (
	PacketDeltaCount            = iana("packetDeltaCount", 2, 8)
	ProtocolIdentifier          = iana("protocolIdentifier", 4, 1)
	SourceTransportPort         = iana("sourceTransportPort", 7, 2)
	SourceIPv4Address           = iana("sourceIPv4Address", 8, 4)
	DestinationTransportPort    = iana("destinationTransportPort", 11, 2)
	DestinationIPv4Address      = iana("destinationIPv4Address", 12, 4)
	IPVersion                   = iana("ipVersion", 60, 1)
	TotalLengthIPv4             = iana("totalLengthIPv4", 190, 2)
	IPTTL                       = iana("ipTTL", 192, 1)
	SamplingSize                = iana("samplingSize", 309, 4)
	ObservationTimeMilliseconds = iana("observationTimeMilliseconds", 323, 8)
	ObservationTimeMicroseconds = iana("observationTimeMicroseconds", 324, 8)
	DigestHashValue             = iana("digestHashValue", 326, 4)
)

// Vendor information elements.
var (
	PcapRecv             = fokus("pcapRecv", 1, 4)
	PcapDrop             = fokus("pcapDrop", 2, 4)
	InterfaceName        = fokus("interfaceName", 3, VarLen)
	InterfaceDescription = fokus("interfaceDescription", 4, VarLen)
	SystemCPUIdle        = fokus("systemCpuIdle", 5, 4)
	SystemMemFree        = fokus("systemMemFree", 6, 8)
	ProcessCPUUser       = fokus("processCpuUser", 7, 4)
	ProcessCPUSys        = fokus("processCpuSys", 8, 4)
	ProcessMemVzs        = fokus("processMemVzs", 9, 8)
	ProcessMemRss        = fokus("processMemRss", 10, 8)
	SystemMemTotal       = fokus("systemMemTotal", 11, 8)
	ProcessThreads       = fokus("processThreads", 12, 4)
	GeoLatitude          = fokus("latitude", 13, VarLen)
	GeoLongitude         = fokus("longitude", 14, VarLen)
	ProbeName            = fokus("probeName", 15, VarLen)
	ProbeLocationName    = fokus("probeLocationName", 16, VarLen)
	MessageID            = fokus("messageId", 17, 4)
	MessageValue         = fokus("messageValue", 18, 4)
	Message              = fokus("message", 19, VarLen)
)

var elements = []Field{
	PacketDeltaCount, ProtocolIdentifier, SourceTransportPort, SourceIPv4Address,
	DestinationTransportPort, DestinationIPv4Address, IPVersion, TotalLengthIPv4, IPTTL,
	SamplingSize, ObservationTimeMilliseconds, ObservationTimeMicroseconds, DigestHashValue,
	PcapRecv, PcapDrop, InterfaceName, InterfaceDescription, SystemCPUIdle, SystemMemFree,
	ProcessCPUUser, ProcessCPUSys, ProcessMemVzs, ProcessMemRss, SystemMemTotal, ProcessThreads,
	GeoLatitude, GeoLongitude, ProbeName, ProbeLocationName, MessageID, MessageValue, Message,
}

// LookupElement returns the known element for an (enterprise, type) pair. Used by decoders
// to name fields of received templates.
func LookupElement(enterpriseID uint32, typ uint16) (Field, bool) {
	for _, f := range elements {
		if f.EnterpriseID == enterpriseID && f.Type == typ {
			return f, true
		}
	}
	return Field{}, false
}

// Package pii defines the PII taxonomy and the detection value objects shared
// by every stage of the deidentification pipeline. Detections are immutable:
// merge operations return new instances and record provenance in metadata.
package pii

// Type is the closed enumeration of PII categories the engine understands.
type Type string

const (
	TypeFace        Type = "face"
	TypeSignature   Type = "signature"
	TypeBarcode     Type = "barcode"
	TypeQRCode      Type = "qr_code"
	TypeName        Type = "name"
	TypeEmail       Type = "email"
	TypePhone       Type = "phone"
	TypeAddress     Type = "address"
	TypeSSN         Type = "ssn"
	TypeIDNumber    Type = "id_number"
	TypeCreditCard  Type = "credit_card"
	TypeDateOfBirth Type = "date_of_birth"
	TypeIPAddress   Type = "ip_address"
)

// DetectionMethod identifies which sub-engine produced a detection.
type DetectionMethod string

const (
	MethodCV      DetectionMethod = "cv"
	MethodNLP     DetectionMethod = "nlp"
	MethodHybrid  DetectionMethod = "hybrid"
	MethodManual  DetectionMethod = "manual"
	MethodUnknown DetectionMethod = "unknown"
)

var visualTypes = map[Type]bool{
	TypeFace:      true,
	TypeSignature: true,
	TypeBarcode:   true,
	TypeQRCode:    true,
}

// sensitiveTypes enables ranking boosts for categories whose exposure causes
// direct, hard-to-revoke harm.
var sensitiveTypes = map[Type]bool{
	TypeSSN:         true,
	TypeCreditCard:  true,
	TypeIDNumber:    true,
	TypeDateOfBirth: true,
	TypeFace:        true,
	TypeSignature:   true,
}

// AllTypes returns every known PII type in declaration order.
func AllTypes() []Type {
	return []Type{
		TypeFace, TypeSignature, TypeBarcode, TypeQRCode,
		TypeName, TypeEmail, TypePhone, TypeAddress,
		TypeSSN, TypeIDNumber, TypeCreditCard, TypeDateOfBirth, TypeIPAddress,
	}
}

// IsVisual reports whether t is detected on the page raster.
func (t Type) IsVisual() bool { return visualTypes[t] }

// IsText reports whether t is detected in extracted text.
func (t Type) IsText() bool { return !visualTypes[t] && t.IsValid() }

// IsSensitive reports whether t receives the sensitive ranking bonus.
func (t Type) IsSensitive() bool { return sensitiveTypes[t] }

// IsValid reports whether t is a member of the closed enumeration.
func (t Type) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

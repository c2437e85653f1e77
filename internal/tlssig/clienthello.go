package tlssig

import (
	"encoding/binary"
	"errors"

	utls "github.com/refraction-networking/utls"
)

const (
	recordHandshake  = 22
	versionTLS11     = 0x0301
	clientHelloMagic = 0x01

	extSupportedGroups   = 0x000a
	extSupportedVersions = 0x002b
)

var u16 = binary.BigEndian.Uint16

// ClientHello holds the fields of a ClientHello message that identify the
// sending implementation. Extension payloads other than supported_groups and
// supported_versions are not retained, only the extension types in their
// order of appearance.
type ClientHello struct {
	clientVersion      uint16
	cipherSuites       []uint16
	compressionMethods []byte
	extensionTypes     []uint16
	supportedGroups    []uint16
	supportedVersions  []uint16
}

func isGREASE(v uint16) bool {
	return v&0x0f0f == utls.GREASE_PLACEHOLDER && byte(v>>8) == byte(v)
}

// AddRecordLayer wraps a raw handshake message in a TLS record layer, as a
// capture tool that only has the handshake body would need to before calling
// ParseClientHello.
func AddRecordLayer(input []byte) []byte {
	ret := make([]byte, 5+len(input))
	ret[0] = recordHandshake
	binary.BigEndian.PutUint16(ret[1:3], versionTLS11)
	binary.BigEndian.PutUint16(ret[3:5], uint16(len(input)))
	copy(ret[5:], input)
	return ret
}

// ParseClientHello parses everything on top of the TLS layer (including the
// record layer) into ClientHello type
func ParseClientHello(data []byte) (ret *ClientHello, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("malformed ClientHello")
		}
	}()
	if data[0] != recordHandshake {
		return ret, errors.New("not a handshake record")
	}
	peeled := data[5:]
	pointer := 0
	// Handshake Type
	if peeled[pointer] != clientHelloMagic {
		return ret, errors.New("not a ClientHello")
	}
	pointer += 1
	// Length
	length := int(peeled[pointer])<<16 | int(u16(peeled[pointer+1:pointer+3]))
	pointer += 3
	if length != len(peeled[pointer:]) {
		return ret, errors.New("hello length doesn't match")
	}
	// Client Version
	clientVersion := u16(peeled[pointer : pointer+2])
	pointer += 2
	// Random
	pointer += 32
	// Session ID
	sessionIdLen := int(peeled[pointer])
	pointer += 1 + sessionIdLen
	// Cipher Suites
	cipherSuitesLen := int(u16(peeled[pointer : pointer+2]))
	pointer += 2
	cipherSuites := make([]uint16, 0, cipherSuitesLen/2)
	for i := 0; i < cipherSuitesLen; i += 2 {
		cipherSuites = append(cipherSuites, u16(peeled[pointer+i:pointer+i+2]))
	}
	pointer += cipherSuitesLen
	// Compression Methods
	compressionMethodsLen := int(peeled[pointer])
	pointer += 1
	compressionMethods := make([]byte, compressionMethodsLen)
	copy(compressionMethods, peeled[pointer:pointer+compressionMethodsLen])
	pointer += compressionMethodsLen
	// Extensions
	pointer += 2
	ret = &ClientHello{
		clientVersion:      clientVersion,
		cipherSuites:       cipherSuites,
		compressionMethods: compressionMethods,
	}
	err = ret.parseExtensions(peeled[pointer:])
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// parseExtensions records the extension types in their order of appearance.
// Signatures are order sensitive, so unlike a handshake implementation this
// cannot collect extensions into a map.
func (ch *ClientHello) parseExtensions(input []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("malformed extensions")
		}
	}()
	pointer := 0
	totalLen := len(input)
	for pointer < totalLen {
		typ := u16(input[pointer : pointer+2])
		pointer += 2
		length := int(u16(input[pointer : pointer+2]))
		pointer += 2
		data := input[pointer : pointer+length]
		pointer += length
		ch.extensionTypes = append(ch.extensionTypes, typ)
		switch typ {
		case extSupportedGroups:
			ch.supportedGroups = parseUint16List(data[2:])
		case extSupportedVersions:
			ch.supportedVersions = parseUint8PrefixedUint16List(data)
		}
	}
	return err
}

func parseUint16List(data []byte) []uint16 {
	ret := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		ret = append(ret, u16(data[i:i+2]))
	}
	return ret
}

func parseUint8PrefixedUint16List(data []byte) []uint16 {
	length := int(data[0])
	return parseUint16List(data[1 : 1+length])
}

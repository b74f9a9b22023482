package schema

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Passthrough encodings never reach Compiler.Compile: this module builds no
// structured view over protobuf or JSON payloads (per the compiler's Open
// Question resolution), it only validates the schema definition itself at
// registration time.

// ValidateProtobufDescriptor parses schemaData as a serialized
// FileDescriptorSet, the wire shape MCAP and bag schema records use for
// encoding == "protobuf", and reports whether it is well-formed. It does
// not compile a Routine: protobuf messages are carried as opaque bytes.
func ValidateProtobufDescriptor(schemaData []byte) (*descriptorpb.FileDescriptorSet, error) {
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(schemaData, &fds); err != nil {
		return nil, &Error{
			Kind:    ErrKindBadDescriptor,
			Message: fmt.Sprintf("invalid protobuf FileDescriptorSet: %v", err),
		}
	}
	return &fds, nil
}

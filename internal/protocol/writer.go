/*
file: goredis/internal/protocol/writer.go
*/
package protocol

import "strconv"

// Encode serializes v into its RESP wire representation, appending to
// dst and returning the grown slice. Arrays are composed by plain
// concatenation of their encoded elements, as the protocol requires.
func Encode(dst []byte, v Value) []byte {
	switch v.Type {
	case SimpleString:
		return AppendSimpleString(dst, v.Str)
	case Error:
		return AppendError(dst, v.Str)
	case Integer:
		return AppendInteger(dst, v.Int)
	case Bulk:
		if v.IsNull {
			return AppendNullBulk(dst)
		}
		return AppendBulk(dst, v.Bulk)
	case Array:
		if v.IsNull {
			return AppendNullArray(dst)
		}
		dst = AppendArrayHeader(dst, len(v.Array))
		for _, item := range v.Array {
			dst = Encode(dst, item)
		}
		return dst
	default:
		return AppendError(dst, "ERR internal encode error")
	}
}

// EncodeBytes is a convenience wrapper returning a freshly allocated slice.
func EncodeBytes(v Value) []byte {
	return Encode(nil, v)
}

func AppendSimpleString(dst []byte, s string) []byte {
	dst = append(dst, byte(SimpleString))
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

func AppendError(dst []byte, msg string) []byte {
	dst = append(dst, byte(Error))
	dst = append(dst, msg...)
	return append(dst, '\r', '\n')
}

func AppendInteger(dst []byte, n int64) []byte {
	dst = append(dst, byte(Integer))
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, '\r', '\n')
}

func AppendBulk(dst []byte, b []byte) []byte {
	dst = append(dst, byte(Bulk))
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

func AppendNullBulk(dst []byte) []byte {
	dst = append(dst, byte(Bulk))
	dst = append(dst, '-', '1')
	return append(dst, '\r', '\n')
}

func AppendArrayHeader(dst []byte, n int) []byte {
	dst = append(dst, byte(Array))
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, '\r', '\n')
}

func AppendNullArray(dst []byte) []byte {
	dst = append(dst, byte(Array))
	dst = append(dst, '-', '1')
	return append(dst, '\r', '\n')
}

// EncodeCommand serializes a command as a RESP array of bulk strings.
// It is used where no raw client bytes exist: AOF rewrite output,
// the AOF AppendCommand fallback, and the SYNC/PSYNC request a
// replica sends to its primary.
func EncodeCommand(parts ...string) []byte {
	dst := AppendArrayHeader(nil, len(parts))
	for _, p := range parts {
		dst = AppendBulk(dst, []byte(p))
	}
	return dst
}

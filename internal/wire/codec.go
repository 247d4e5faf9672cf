package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers are assigned per message kind (each kind numbers its
// own fields from 1); each Marshal/Unmarshal pair below only needs to
// agree with itself.

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	n := int64(0)
	if v {
		n = 1
	}
	return appendVarint(b, num, n)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendHostAddr(b []byte, num protowire.Number, a HostAddr) []byte {
	inner := appendBytes(nil, 1, []byte(a.Host))
	inner = appendVarint(inner, 2, int64(a.Port))
	return appendBytes(b, num, inner)
}

func consumeHostAddr(b []byte) (HostAddr, error) {
	var a HostAddr
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return a, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return a, protowire.ParseError(n)
			}
			a.Host = string(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return a, protowire.ParseError(n)
			}
			a.Port = int32(v)
			b = b[n:]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return a, fmt.Errorf("wire: bad host addr field %d", num)
			}
			b = b[n:]
		}
	}
	return a, nil
}

func consumeUnknown(b []byte, typ protowire.Type) int {
	return protowire.ConsumeFieldValue(0, typ, b)
}

// MarshalLogEntry encodes a LogEntry.
func MarshalLogEntry(e LogEntry) []byte {
	var b []byte
	b = appendVarint(b, 1, e.LogID)
	b = appendVarint(b, 2, e.Term)
	b = appendVarint(b, 3, e.Cluster)
	b = appendVarint(b, 4, int64(e.Type))
	b = appendBytes(b, 5, e.Payload)
	return b
}

// UnmarshalLogEntry decodes a LogEntry.
func UnmarshalLogEntry(b []byte) (LogEntry, error) {
	var e LogEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.LogID = int64(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Term = int64(v)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Cluster = int64(v)
			b = b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Type = int32(v)
			b = b[n:]
		case 5:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Payload = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return e, fmt.Errorf("wire: bad log entry field %d", num)
			}
			b = b[n:]
		}
	}
	return e, nil
}

// MarshalAskForVoteRequest encodes an AskForVoteRequest.
func MarshalAskForVoteRequest(r AskForVoteRequest) []byte {
	var b []byte
	b = appendVarint(b, 1, r.Space)
	b = appendVarint(b, 2, r.Part)
	b = appendHostAddr(b, 3, r.Candidate)
	b = appendVarint(b, 4, r.Term)
	b = appendVarint(b, 5, r.LastLogID)
	b = appendVarint(b, 6, r.LastLogTerm)
	return b
}

// UnmarshalAskForVoteRequest decodes an AskForVoteRequest.
func UnmarshalAskForVoteRequest(b []byte) (AskForVoteRequest, error) {
	var r AskForVoteRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.Space, b = int64(v), b[chk(n):]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			r.Part, b = int64(v), b[chk(n):]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			a, err := consumeHostAddr(v)
			if err != nil {
				return r, err
			}
			r.Candidate, b = a, b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			r.Term, b = int64(v), b[chk(n):]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogID, b = int64(v), b[chk(n):]
		case 6:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogTerm, b = int64(v), b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad AskForVoteRequest field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// chk panics on a malformed varint length the same way the surrounding
// loop would if it checked every n individually; kept tiny to avoid
// repeating the same four lines for every scalar field above.
func chk(n int) int {
	if n < 0 {
		panic(protowire.ParseError(n))
	}
	return n
}

// MarshalAskForVoteResponse encodes an AskForVoteResponse.
func MarshalAskForVoteResponse(r AskForVoteResponse) []byte {
	var b []byte
	b = appendVarint(b, 1, int64(r.ErrorCode))
	b = appendVarint(b, 2, r.CurrentTerm)
	return b
}

// UnmarshalAskForVoteResponse decodes an AskForVoteResponse.
func UnmarshalAskForVoteResponse(b []byte) (AskForVoteResponse, error) {
	var r AskForVoteResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.ErrorCode, b = int32(v), b[chk(n):]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			r.CurrentTerm, b = int64(v), b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad AskForVoteResponse field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalAppendLogRequest encodes an AppendLogRequest.
func MarshalAppendLogRequest(r AppendLogRequest) []byte {
	var b []byte
	b = appendVarint(b, 1, r.Space)
	b = appendVarint(b, 2, r.Part)
	b = appendHostAddr(b, 3, r.Leader)
	b = appendVarint(b, 4, r.CurrentTerm)
	b = appendVarint(b, 5, r.LastLogID)
	b = appendVarint(b, 6, r.CommittedLogID)
	b = appendVarint(b, 7, r.LastLogIDSent)
	b = appendVarint(b, 8, r.LastLogTermSent)
	b = appendVarint(b, 9, r.LogTerm)
	for _, e := range r.Entries {
		b = appendBytes(b, 10, MarshalLogEntry(e))
	}
	b = appendBool(b, 11, r.SendingSnapshot)
	b = appendBool(b, 12, r.KeepAlive)
	return b
}

// UnmarshalAppendLogRequest decodes an AppendLogRequest.
func UnmarshalAppendLogRequest(b []byte) (AppendLogRequest, error) {
	var r AppendLogRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.Space, b = int64(v), b[chk(n):]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			r.Part, b = int64(v), b[chk(n):]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			a, err := consumeHostAddr(v)
			if err != nil {
				return r, err
			}
			r.Leader, b = a, b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			r.CurrentTerm, b = int64(v), b[chk(n):]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogID, b = int64(v), b[chk(n):]
		case 6:
			v, n := protowire.ConsumeVarint(b)
			r.CommittedLogID, b = int64(v), b[chk(n):]
		case 7:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogIDSent, b = int64(v), b[chk(n):]
		case 8:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogTermSent, b = int64(v), b[chk(n):]
		case 9:
			v, n := protowire.ConsumeVarint(b)
			r.LogTerm, b = int64(v), b[chk(n):]
		case 10:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			e, err := UnmarshalLogEntry(v)
			if err != nil {
				return r, err
			}
			r.Entries = append(r.Entries, e)
			b = b[n:]
		case 11:
			v, n := protowire.ConsumeVarint(b)
			r.SendingSnapshot, b = v != 0, b[chk(n):]
		case 12:
			v, n := protowire.ConsumeVarint(b)
			r.KeepAlive, b = v != 0, b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad AppendLogRequest field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalAppendLogResponse encodes an AppendLogResponse.
func MarshalAppendLogResponse(r AppendLogResponse) []byte {
	var b []byte
	b = appendVarint(b, 1, int64(r.ErrorCode))
	b = appendVarint(b, 2, r.CurrentTerm)
	b = appendHostAddr(b, 3, r.Leader)
	b = appendVarint(b, 4, r.CommittedLogID)
	b = appendVarint(b, 5, r.LastLogID)
	b = appendVarint(b, 6, r.LastLogTerm)
	return b
}

// UnmarshalAppendLogResponse decodes an AppendLogResponse.
func UnmarshalAppendLogResponse(b []byte) (AppendLogResponse, error) {
	var r AppendLogResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.ErrorCode, b = int32(v), b[chk(n):]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			r.CurrentTerm, b = int64(v), b[chk(n):]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			a, err := consumeHostAddr(v)
			if err != nil {
				return r, err
			}
			r.Leader, b = a, b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			r.CommittedLogID, b = int64(v), b[chk(n):]
		case 5:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogID, b = int64(v), b[chk(n):]
		case 6:
			v, n := protowire.ConsumeVarint(b)
			r.LastLogTerm, b = int64(v), b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad AppendLogResponse field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalSendSnapshotRequest encodes a SendSnapshotRequest.
func MarshalSendSnapshotRequest(r SendSnapshotRequest) []byte {
	var b []byte
	b = appendVarint(b, 1, r.Space)
	b = appendVarint(b, 2, r.Part)
	b = appendHostAddr(b, 3, r.Leader)
	b = appendVarint(b, 4, r.Term)
	for _, row := range r.Rows {
		b = appendBytes(b, 5, row)
	}
	b = appendVarint(b, 6, r.CommittedLogID)
	b = appendVarint(b, 7, r.CommittedLogTerm)
	b = appendVarint(b, 8, r.TotalCount)
	b = appendVarint(b, 9, r.TotalSize)
	b = appendBool(b, 10, r.Done)
	return b
}

// UnmarshalSendSnapshotRequest decodes a SendSnapshotRequest.
func UnmarshalSendSnapshotRequest(b []byte) (SendSnapshotRequest, error) {
	var r SendSnapshotRequest
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.Space, b = int64(v), b[chk(n):]
		case 2:
			v, n := protowire.ConsumeVarint(b)
			r.Part, b = int64(v), b[chk(n):]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			a, err := consumeHostAddr(v)
			if err != nil {
				return r, err
			}
			r.Leader, b = a, b[n:]
		case 4:
			v, n := protowire.ConsumeVarint(b)
			r.Term, b = int64(v), b[chk(n):]
		case 5:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Rows = append(r.Rows, append([]byte(nil), v...))
			b = b[n:]
		case 6:
			v, n := protowire.ConsumeVarint(b)
			r.CommittedLogID, b = int64(v), b[chk(n):]
		case 7:
			v, n := protowire.ConsumeVarint(b)
			r.CommittedLogTerm, b = int64(v), b[chk(n):]
		case 8:
			v, n := protowire.ConsumeVarint(b)
			r.TotalCount, b = int64(v), b[chk(n):]
		case 9:
			v, n := protowire.ConsumeVarint(b)
			r.TotalSize, b = int64(v), b[chk(n):]
		case 10:
			v, n := protowire.ConsumeVarint(b)
			r.Done, b = v != 0, b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad SendSnapshotRequest field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

// MarshalSendSnapshotResponse encodes a SendSnapshotResponse.
func MarshalSendSnapshotResponse(r SendSnapshotResponse) []byte {
	return appendVarint(nil, 1, int64(r.ErrorCode))
}

// UnmarshalSendSnapshotResponse decodes a SendSnapshotResponse.
func UnmarshalSendSnapshotResponse(b []byte) (SendSnapshotResponse, error) {
	var r SendSnapshotResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			r.ErrorCode, b = int32(v), b[chk(n):]
		default:
			n := consumeUnknown(b, typ)
			if n < 0 {
				return r, fmt.Errorf("wire: bad SendSnapshotResponse field %d", num)
			}
			b = b[n:]
		}
	}
	return r, nil
}

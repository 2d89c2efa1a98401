package chain

import (
	"encoding/binary"
	"fmt"
)

// Account layouts are fixed-width little-endian, matching the aggregator
// program's schema.
const (
	descriptionLen      = 32
	aggregatorConfigLen = descriptionLen + 4 + 8 + 32
	aggregatorLen       = aggregatorConfigLen + 32 + 32 + 24 + 32
	oracleLen           = descriptionLen + 8 + 8
	submissionLen       = 8 + 8 + 32
)

// decoder reads fixed-width fields from an account buffer.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) bytes(n int) []byte {
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.bytes(1)
	return b[0]
}

func (d *decoder) u64() uint64 {
	return binary.LittleEndian.Uint64(d.bytes(8))
}

func (d *decoder) address() Address {
	var a Address
	copy(a[:], d.bytes(32))
	return a
}

// DeserializeAggregator decodes an aggregator account.
func DeserializeAggregator(data []byte) (Aggregator, error) {
	if len(data) < aggregatorLen {
		return Aggregator{}, fmt.Errorf("%w: aggregator needs %d bytes, got %d",
			ErrAccountTooShort, aggregatorLen, len(data))
	}

	d := &decoder{buf: data}

	var agg Aggregator
	agg.Config = AggregatorConfig{
		Description:    trimDescription(d.bytes(descriptionLen)),
		Decimals:       d.u8(),
		MinSubmissions: d.u8(),
		MaxSubmissions: d.u8(),
		RestartDelay:   d.u8(),
		RewardAmount:   d.u64(),
	}
	agg.Config.RewardTokenAccount = d.address()
	agg.RoundSubmissions = d.address()
	agg.AnswerSubmissions = d.address()
	agg.Round = Round{
		ID:        d.u64(),
		CreatedAt: d.u64(),
		UpdatedAt: d.u64(),
	}
	agg.Answer = Answer{
		RoundID:   d.u64(),
		Median:    int64(d.u64()),
		CreatedAt: d.u64(),
		UpdatedAt: d.u64(),
	}

	return agg, nil
}

// DeserializeOracle decodes an oracle account.
func DeserializeOracle(data []byte) (Oracle, error) {
	if len(data) < oracleLen {
		return Oracle{}, fmt.Errorf("%w: oracle needs %d bytes, got %d",
			ErrAccountTooShort, oracleLen, len(data))
	}

	d := &decoder{buf: data}

	return Oracle{
		Description:     trimDescription(d.bytes(descriptionLen)),
		AllowStartRound: d.u64(),
		Withdrawable:    d.u64(),
	}, nil
}

// DeserializeSubmissions decodes a submissions account. The account is a
// fixed array of submission slots; slots with a zero oracle are empty.
func DeserializeSubmissions(data []byte) (Submissions, error) {
	if len(data)%submissionLen != 0 {
		return Submissions{}, fmt.Errorf("%w: submissions length %d not a multiple of %d",
			ErrAccountTooShort, len(data), submissionLen)
	}

	d := &decoder{buf: data}

	n := len(data) / submissionLen
	subs := Submissions{Entries: make([]Submission, 0, n)}
	for i := 0; i < n; i++ {
		subs.Entries = append(subs.Entries, Submission{
			UpdatedAt: d.u64(),
			Value:     int64(d.u64()),
			Oracle:    d.address(),
		})
	}

	return subs, nil
}

// SerializeAggregator encodes an aggregator account, for tests and tooling.
func SerializeAggregator(agg Aggregator) []byte {
	buf := make([]byte, 0, aggregatorLen)
	buf = appendDescription(buf, agg.Config.Description)
	buf = append(buf, agg.Config.Decimals, agg.Config.MinSubmissions,
		agg.Config.MaxSubmissions, agg.Config.RestartDelay)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Config.RewardAmount)
	buf = append(buf, agg.Config.RewardTokenAccount[:]...)
	buf = append(buf, agg.RoundSubmissions[:]...)
	buf = append(buf, agg.AnswerSubmissions[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Round.ID)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Round.CreatedAt)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Round.UpdatedAt)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Answer.RoundID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(agg.Answer.Median))
	buf = binary.LittleEndian.AppendUint64(buf, agg.Answer.CreatedAt)
	buf = binary.LittleEndian.AppendUint64(buf, agg.Answer.UpdatedAt)
	return buf
}

// SerializeOracle encodes an oracle account, for tests and tooling.
func SerializeOracle(o Oracle) []byte {
	buf := make([]byte, 0, oracleLen)
	buf = appendDescription(buf, o.Description)
	buf = binary.LittleEndian.AppendUint64(buf, o.AllowStartRound)
	buf = binary.LittleEndian.AppendUint64(buf, o.Withdrawable)
	return buf
}

// SerializeSubmissions encodes a submissions account, for tests and tooling.
func SerializeSubmissions(s Submissions) []byte {
	buf := make([]byte, 0, len(s.Entries)*submissionLen)
	for _, sub := range s.Entries {
		buf = binary.LittleEndian.AppendUint64(buf, sub.UpdatedAt)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(sub.Value))
		buf = append(buf, sub.Oracle[:]...)
	}
	return buf
}

func appendDescription(buf []byte, desc string) []byte {
	var fixed [descriptionLen]byte
	copy(fixed[:], desc)
	return append(buf, fixed[:]...)
}

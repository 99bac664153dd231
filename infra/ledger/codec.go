package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"treiber/domain/stack"
	"treiber/service/stress"
)

var ErrCorruptRecord = errors.New("ledger: corrupt record")

// Struct numbers are float64, exact up to 2^53. Values that can use all
// 64 bits (ids, seeds, wrapping sums, timestamps) are stored as decimal
// strings instead.
const maxExact = 1 << 53

// encodeReport marshals rep as a protobuf Struct keyed by field name.
func encodeReport(rep stress.Report) ([]byte, error) {
	sc, st := rep.Scenario, rep.Stats

	var started string
	if !rep.StartedAt.IsZero() {
		started = strconv.FormatInt(rep.StartedAt.UnixNano(), 10)
	}
	violations := make([]any, len(rep.Violations))
	for i, v := range rep.Violations {
		violations[i] = v
	}

	s, err := structpb.NewStruct(map[string]any{
		"run_id":     strconv.FormatUint(rep.RunID, 10),
		"started_at": started,
		"scenario": map[string]any{
			"variant":           sc.Variant.String(),
			"pushers":           sc.Pushers,
			"pushes_per_pusher": sc.PushesPerPusher,
			"poppers":           sc.Poppers,
			"seed":              strconv.FormatInt(sc.Seed, 10),
			"poison_check":      sc.PoisonCheck,
		},
		"push_duration_ns": int64(rep.PushDuration),
		"pop_duration_ns":  int64(rep.PopDuration),
		"pushed":           rep.Pushed,
		"popped":           rep.Popped,
		"push_sum":         strconv.FormatUint(rep.PushSum, 10),
		"pop_sum":          strconv.FormatUint(rep.PopSum, 10),
		"duplicates":       rep.Duplicates,
		"missing":          rep.Missing,
		"leftover":         rep.Leftover,
		"stats": map[string]any{
			"allocs":      st.Allocs,
			"frees":       st.Frees,
			"created":     st.Created,
			"deferred":    st.Deferred,
			"drains":      st.Drains,
			"reattached":  st.Reattached,
			"garbage":     st.Garbage,
			"active_pops": st.ActivePops,
		},
		"violations": violations,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: encode run %d: %w", rep.RunID, err)
	}
	return proto.Marshal(s)
}

func decodeReport(b []byte) (stress.Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return stress.Report{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	var rep stress.Report
	f := fields{m: s.GetFields()}
	sc := f.sub("scenario")
	st := f.sub("stats")

	rep.RunID = f.uint64s("run_id")
	if ns := f.str("started_at"); ns != "" {
		n, err := strconv.ParseInt(ns, 10, 64)
		if err != nil {
			f.fail("started_at", err)
		}
		rep.StartedAt = time.Unix(0, n)
	}

	variant, err := stack.ParseVariant(sc.str("variant"))
	if err != nil {
		sc.fail("variant", err)
	}
	rep.Scenario = stress.Scenario{
		Variant:         variant,
		Pushers:         sc.int("pushers"),
		PushesPerPusher: sc.int("pushes_per_pusher"),
		Poppers:         sc.int("poppers"),
		Seed:            sc.int64s("seed"),
		PoisonCheck:     sc.bool("poison_check"),
	}

	rep.PushDuration = time.Duration(f.num("push_duration_ns"))
	rep.PopDuration = time.Duration(f.num("pop_duration_ns"))
	rep.Pushed = f.count("pushed")
	rep.Popped = f.count("popped")
	rep.PushSum = f.uint64s("push_sum")
	rep.PopSum = f.uint64s("pop_sum")
	rep.Duplicates = f.count("duplicates")
	rep.Missing = f.count("missing")
	rep.Leftover = f.count("leftover")

	rep.Stats = stack.Stats{
		Allocs:     st.count("allocs"),
		Frees:      st.count("frees"),
		Created:    st.count("created"),
		Deferred:   st.count("deferred"),
		Drains:     st.count("drains"),
		Reattached: st.count("reattached"),
		Garbage:    st.num("garbage"),
		ActivePops: st.num("active_pops"),
	}

	for _, v := range f.list("violations") {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			f.fail("violations", errors.New("not a string"))
			break
		}
		rep.Violations = append(rep.Violations, sv.StringValue)
	}

	for _, e := range []error{f.err, sc.err, st.err} {
		if e != nil {
			return stress.Report{}, e
		}
	}
	return rep, nil
}

// fields reads typed values out of a Struct. The first bad field is
// remembered in err; later reads still return zero values.
type fields struct {
	prefix string
	m      map[string]*structpb.Value
	err    error
}

func (f *fields) fail(key string, err error) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %s%s: %v", ErrCorruptRecord, f.prefix, key, err)
	}
}

func (f *fields) sub(key string) *fields {
	out := &fields{prefix: f.prefix + key + "."}
	if v, ok := f.m[key]; ok {
		sv, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			f.fail(key, errors.New("not a struct"))
			return out
		}
		out.m = sv.StructValue.GetFields()
	}
	return out
}

func (f *fields) str(key string) string {
	v, ok := f.m[key]
	if !ok {
		return ""
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		f.fail(key, errors.New("not a string"))
		return ""
	}
	return sv.StringValue
}

func (f *fields) bool(key string) bool {
	v, ok := f.m[key]
	if !ok {
		return false
	}
	bv, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		f.fail(key, errors.New("not a bool"))
		return false
	}
	return bv.BoolValue
}

func (f *fields) list(key string) []*structpb.Value {
	v, ok := f.m[key]
	if !ok {
		return nil
	}
	lv, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		f.fail(key, errors.New("not a list"))
		return nil
	}
	return lv.ListValue.GetValues()
}

// num returns an integral number in the exactly representable range.
func (f *fields) num(key string) int64 {
	v, ok := f.m[key]
	if !ok {
		return 0
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		f.fail(key, errors.New("not a number"))
		return 0
	}
	x := nv.NumberValue
	if x != math.Trunc(x) || x < -maxExact || x > maxExact {
		f.fail(key, fmt.Errorf("%v is not an exact integer", x))
		return 0
	}
	return int64(x)
}

func (f *fields) count(key string) uint64 {
	n := f.num(key)
	if n < 0 {
		f.fail(key, fmt.Errorf("negative count %d", n))
		return 0
	}
	return uint64(n)
}

func (f *fields) int(key string) int {
	n := f.num(key)
	if n < 0 || n > math.MaxInt32 {
		f.fail(key, fmt.Errorf("%d out of range", n))
		return 0
	}
	return int(n)
}

func (f *fields) uint64s(key string) uint64 {
	s := f.str(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		f.fail(key, err)
	}
	return n
}

func (f *fields) int64s(key string) int64 {
	s := f.str(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f.fail(key, err)
	}
	return n
}

// Stored value: [state:1][crc:4][report]
const headerLen = 5

func encodeEntry(e Entry) ([]byte, error) {
	body, err := encodeReport(e.Report)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerLen, headerLen+len(body))
	buf[0] = byte(e.State)
	binary.LittleEndian.PutUint32(buf[1:headerLen], crc32.ChecksumIEEE(body))
	return append(buf, body...), nil
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	state := State(b[0])
	if state != StateNew && state != StatePublished {
		return Entry{}, fmt.Errorf("%w: state %d", ErrCorruptRecord, b[0])
	}
	body := b[headerLen:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(b[1:headerLen]) {
		return Entry{}, fmt.Errorf("%w: crc mismatch", ErrCorruptRecord)
	}
	rep, err := decodeReport(body)
	if err != nil {
		return Entry{}, err
	}
	return Entry{State: state, Report: rep}, nil
}

package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/backend/software"
)

// Report is the outcome of a replay.
type Report struct {
	Workload string `yaml:"workload" json:"workload" msgpack:"workload" cbor:"workload"`
	Frames   int    `yaml:"frames" json:"frames" msgpack:"frames" cbor:"frames"`

	Caches gpucache.CacheStats `yaml:"caches" json:"caches" msgpack:"caches" cbor:"caches"`
	Calls  software.Calls      `yaml:"calls" json:"calls" msgpack:"calls" cbor:"calls"`

	// Leaked counts device objects still alive after the caches were
	// destroyed. It is zero for a correct cache.
	Leaked software.Live `yaml:"leaked" json:"leaked" msgpack:"leaked" cbor:"leaked"`

	PeakSets    int `yaml:"peak_sets" json:"peak_sets" msgpack:"peak_sets" cbor:"peak_sets"`
	PeakPools   int `yaml:"peak_pools" json:"peak_pools" msgpack:"peak_pools" cbor:"peak_pools"`
	PeakExtinct int `yaml:"peak_extinct" json:"peak_extinct" msgpack:"peak_extinct" cbor:"peak_extinct"`

	Elapsed time.Duration `yaml:"elapsed" json:"elapsed" msgpack:"elapsed" cbor:"elapsed"`
}

// Formats lists the encodings accepted by Encode.
var Formats = []string{"text", "yaml", "json", "msgpack", "cbor"}

// Encode writes r to w in format.
func (r *Report) Encode(w io.Writer, format string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "", "text":
		return r.writeText(w)
	case "yaml":
		data, err = yaml.Marshal(r)
	case "json":
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	case "msgpack":
		data, err = msgpack.Marshal(r)
	case "cbor":
		data, err = cbor.Marshal(r)
	default:
		return fmt.Errorf("workload: unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	if err != nil {
		return fmt.Errorf("workload: encode %s report: %w", format, err)
	}
	_, err = w.Write(data)
	return err
}

func (r *Report) writeText(w io.Writer) error {
	c := &r.Caches
	_, err := fmt.Fprintf(w, `workload %s: %d frames in %v
  layouts        %6d live  %5.1f%% hits
  render passes  %6d live  %5.1f%% hits  %d evicted
  framebuffers   %6d live  %5.1f%% hits  %d evicted
  descriptors    %6d live  %5.1f%% hits  %d evicted
  pool           %d growths  %d reclaimed  peak %d pools  peak %d extinct
  device         %d creates  %d destroys  %d allocations  %d frees  %d invalid
  leaked         %d objects
`,
		r.Workload, r.Frames, r.Elapsed.Round(time.Millisecond),
		c.Layouts.Len, 100*c.Layouts.HitRate,
		c.RenderPasses.Len, 100*c.RenderPasses.HitRate, c.RenderPasses.Evictions,
		c.FrameBuffers.Len, 100*c.FrameBuffers.HitRate, c.FrameBuffers.Evictions,
		c.Descriptors.Len, 100*c.Descriptors.HitRate, c.Descriptors.Evictions,
		c.Pool.Growths, c.Pool.Reclaimed, r.PeakPools, r.PeakExtinct,
		r.Calls.Creates, r.Calls.Destroys, r.Calls.Allocations, r.Calls.Frees, r.Calls.Invalid,
		r.Leaked.Total(),
	)
	return err
}

// Decode reads a report encoded by Encode. The text format cannot be decoded.
func Decode(data []byte, format string) (*Report, error) {
	r := &Report{}
	var err error
	switch strings.ToLower(format) {
	case "yaml":
		err = yaml.Unmarshal(data, r)
	case "json":
		err = json.Unmarshal(data, r)
	case "msgpack":
		err = msgpack.Unmarshal(data, r)
	case "cbor":
		err = cbor.Unmarshal(data, r)
	default:
		return nil, fmt.Errorf("workload: cannot decode report format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("workload: decode %s report: %w", format, err)
	}
	return r, nil
}

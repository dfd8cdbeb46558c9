package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dd0wney/bloomd/pkg/bloomderrors"
	"github.com/dd0wney/bloomd/pkg/manager"
	"github.com/dd0wney/bloomd/pkg/validation"
)

// MaxLineBytes is the maximum accepted request line length.
const MaxLineBytes = 64 * 1024

// request is a parsed `COMMAND [ARG1 [ARG2]]` line: the server splits into
// at most three tokens, the third being the rest of the line unsplit.
type request struct {
	command string
	arg1    string
	rest    string
}

func parseLine(line string) request {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.SplitN(line, " ", 3)

	var r request
	r.command = parts[0]
	if len(parts) > 1 {
		r.arg1 = parts[1]
	}
	if len(parts) > 2 {
		r.rest = parts[2]
	}
	return r
}

// Dispatch parses and executes a single request line against exec, and
// returns the reply text (without its trailing newline). Every line gets a
// reply; a blank line is answered as an unsupported command.
func Dispatch(exec Executor, line string) string {
	if len(line) > MaxLineBytes {
		return "Client Error: Line too long"
	}

	req := parseLine(line)
	switch req.command {
	case "create":
		return cmdCreate(exec, req)
	case "drop":
		return cmdDrop(exec, req)
	case "close":
		return cmdClose(exec, req)
	case "check", "c":
		return cmdCheck(exec, req)
	case "multi", "m":
		return cmdMulti(exec, req)
	case "set", "s":
		return cmdSet(exec, req)
	case "bulk", "b":
		return cmdBulk(exec, req)
	case "info":
		return cmdInfo(exec, req)
	case "list":
		return cmdList(exec)
	case "flush":
		return cmdFlush(exec, req)
	case "conf":
		return cmdConf(exec, req)
	default:
		return "Client Error: Command not supported"
	}
}

func validateName(name string) (string, bool) {
	if err := validation.ValidateFilterName(name); err != nil {
		return "Client Error: Bad filter name", false
	}
	return "", true
}

func cmdCreate(exec Executor, req request) string {
	name := req.arg1
	if errMsg, ok := validateName(name); !ok {
		return errMsg
	}

	var overrides manager.Overrides
	if req.rest != "" {
		fields := strings.Fields(req.rest)
		if len(fields) >= 1 {
			capacity, err := strconv.Atoi(fields[0])
			if err != nil {
				return "Client Error: Bad capacity"
			}
			overrides.InitialCapacity = &capacity
		}
		if len(fields) >= 2 {
			prob, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return "Client Error: Bad probability"
			}
			overrides.DefaultProbability = &prob
		}
	}

	creq := &validation.CreateRequest{Name: name}
	if overrides.InitialCapacity != nil {
		creq.Capacity = *overrides.InitialCapacity
	}
	if overrides.DefaultProbability != nil {
		creq.Probability = *overrides.DefaultProbability
	}
	if creq.Capacity > 0 || creq.Probability > 0 {
		if err := validation.ValidateCreateRequest(creq); err != nil {
			return "Client Error: " + err.Error()
		}
	}

	err := exec.Create(name, overrides)
	switch {
	case err == nil:
		return "Done"
	case errors.Is(err, bloomderrors.ErrAlreadyExists):
		return "Exists"
	default:
		return "Internal Error: " + err.Error()
	}
}

func cmdDrop(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	err := exec.Drop(req.arg1)
	return doneOrMissing(err)
}

func cmdClose(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	err := exec.CloseFilter(req.arg1)
	return doneOrMissing(err)
}

func cmdCheck(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	key := req.rest
	results, err := exec.CheckKeys(req.arg1, [][]byte{[]byte(key)})
	if err != nil {
		return missingOrInternalError(err)
	}
	return yesNo(results[0])
}

func cmdMulti(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	keys := splitKeys(req.rest)
	results, err := exec.CheckKeys(req.arg1, keys)
	if err != nil {
		return missingOrInternalError(err)
	}
	return joinYesNo(results)
}

func cmdSet(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	key := req.rest
	results, err := exec.SetKeys(req.arg1, [][]byte{[]byte(key)})
	if err != nil {
		return missingOrInternalError(err)
	}
	return yesNo(results[0])
}

func cmdBulk(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	keys := splitKeys(req.rest)
	results, err := exec.SetKeys(req.arg1, keys)
	if err != nil {
		return missingOrInternalError(err)
	}
	return joinYesNo(results)
}

func cmdInfo(exec Executor, req request) string {
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	info, err := exec.Info(req.arg1)
	if err != nil {
		return missingOrInternalError(err)
	}

	fields := map[string]string{
		"capacity":     strconv.Itoa(info.Capacity),
		"size":         strconv.FormatUint(info.Size, 10),
		"byte_size":    strconv.FormatInt(info.ByteSize, 10),
		"probability":  strconv.FormatFloat(info.Probability, 'f', -1, 64),
		"check_hits":   strconv.FormatUint(info.Counters.CheckHits, 10),
		"check_misses": strconv.FormatUint(info.Counters.CheckMisses, 10),
		"set_hits":     strconv.FormatUint(info.Counters.SetHits, 10),
		"set_misses":   strconv.FormatUint(info.Counters.SetMisses, 10),
		"page_ins":     strconv.FormatUint(info.Counters.PageIns, 10),
		"page_outs":    strconv.FormatUint(info.Counters.PageOuts, 10),
	}
	return frameMap(fields)
}

func cmdList(exec Executor) string {
	list := exec.List()
	var b strings.Builder
	b.WriteString("START\n")
	for _, info := range list {
		fmt.Fprintf(&b, "%s %s %d %d %d\n",
			info.Name,
			strconv.FormatFloat(info.Probability, 'f', -1, 64),
			info.ByteSize,
			info.Capacity,
			info.Size,
		)
	}
	b.WriteString("END")
	return b.String()
}

func cmdFlush(exec Executor, req request) string {
	if req.arg1 == "" {
		exec.FlushAll()
		return "Done"
	}
	if errMsg, ok := validateName(req.arg1); !ok {
		return errMsg
	}
	err := exec.FlushFilter(req.arg1)
	return doneOrMissing(err)
}

func cmdConf(exec Executor, req request) string {
	confs, err := exec.Conf(req.arg1)
	if err != nil {
		return missingOrInternalError(err)
	}

	if req.arg1 != "" {
		cfg := confs[req.arg1]
		return frameMap(map[string]string{
			"initial_capacity":      strconv.Itoa(cfg.InitialCapacity),
			"default_probability":   strconv.FormatFloat(cfg.DefaultProbability, 'f', -1, 64),
			"scale_size":            strconv.Itoa(cfg.ScaleSize),
			"probability_reduction": strconv.FormatFloat(cfg.ProbabilityReduction, 'f', -1, 64),
		})
	}

	names := make([]string, 0, len(confs))
	for name := range confs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("START\n")
	for _, name := range names {
		cfg := confs[name]
		fmt.Fprintf(&b, "%s capacity=%d probability=%s\n",
			name, cfg.InitialCapacity, strconv.FormatFloat(cfg.DefaultProbability, 'f', -1, 64))
	}
	b.WriteString("END")
	return b.String()
}

// frameMap formats fields as a sorted-key START/END block.
func frameMap(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("START\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %s\n", k, fields[k])
	}
	b.WriteString("END")
	return b.String()
}

func splitKeys(rest string) [][]byte {
	fields := strings.Fields(rest)
	keys := make([][]byte, len(fields))
	for i, f := range fields {
		keys[i] = []byte(f)
	}
	return keys
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func joinYesNo(results []bool) string {
	tokens := make([]string, len(results))
	for i, r := range results {
		tokens[i] = yesNo(r)
	}
	return strings.Join(tokens, " ")
}

// doneOrMissing turns a lifecycle-command error into its reply line. Every
// error that reaches here has already passed name/request validation, so
// anything other than NotFound is an internal failure (disk I/O, a failed
// flush), never a malformed client request.
func doneOrMissing(err error) string {
	switch {
	case err == nil:
		return "Done"
	case errors.Is(err, bloomderrors.ErrNotFound):
		return "Filter does not exist"
	default:
		return "Internal Error: " + err.Error()
	}
}

// missingOrInternalError is doneOrMissing's counterpart for commands that
// return a value alongside the error (check/set/info/conf).
func missingOrInternalError(err error) string {
	if errors.Is(err, bloomderrors.ErrNotFound) {
		return "Filter does not exist"
	}
	return "Internal Error: " + err.Error()
}


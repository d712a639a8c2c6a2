// Package dataset 负责样本的读取、预处理与划分，产出 svm 包可直接训练的 (X, y).
package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/wyfcoding/smosvm/xerrors"
)

// DefaultDelimiter 默认分隔符.
const DefaultDelimiter = ';'

// CSVOptions CSV 读取参数.
type CSVOptions struct {
	HasHeader bool
	Delimiter rune
}

// DefaultCSVOptions 带表头、分号分隔.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{HasHeader: true, Delimiter: DefaultDelimiter}
}

// ParseDelimiter 把配置里的字符串转换为单个分隔符，空串取默认值，"\t" 表示制表符.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, xerrors.Detailf(xerrors.ErrInvalidConfig, "invalid csv delimiter %q", s)
	}
	return r, nil
}

// ReadCSV 读取纯数值 CSV。空行被跳过，单元格两端空白被去除。
// 行宽不一致返回 ErrDimMismatch，无法解析为数字返回 ErrInvalidInput.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]float64, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var rows [][]float64
	headerSkipped := !opts.HasHeader
	width := -1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e := xerrors.Detailf(xerrors.ErrInvalidInput, "csv: %v", err)
			e.Cause = err
			return nil, e
		}
		line, _ := reader.FieldPos(0)
		if !headerSkipped {
			headerSkipped = true
			continue
		}
		if blank(record) {
			continue
		}
		if width < 0 {
			width = len(record)
		} else if len(record) != width {
			return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "line %d has %d columns, want %d", line, len(record), width)
		}

		row := make([]float64, len(record))
		for col, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				return nil, xerrors.Detailf(xerrors.ErrInvalidInput, "line %d col %d is empty", line, col+1).
					WithContext("line", line).WithContext("column", col+1)
			}
			v, err := cast.ToFloat64E(cell)
			if err != nil {
				return nil, xerrors.Detailf(xerrors.ErrInvalidInput, "line %d col %d: %q is not a number", line, col+1, cell).
					WithContext("line", line).WithContext("column", col+1)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, xerrors.ErrEmptyData
	}
	return rows, nil
}

// ReadCSVFile 打开并读取 CSV 文件.
func ReadCSVFile(path string, opts CSVOptions) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Wrap(err, xerrors.ErrNotFound, "csv file not found")
		}
		return nil, xerrors.WrapInternal(err, "open csv file")
	}
	defer f.Close()

	return ReadCSV(f, opts)
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

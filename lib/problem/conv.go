// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package problem

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Direction is the convolution pass.
type Direction string

const (
	Forward        Direction = "F"
	BackwardData   Direction = "B"
	BackwardWeight Direction = "W"
)

// Data types stored in the data_type column.
const (
	FP32  = "FP32"
	FP16  = "FP16"
	BF16  = "BF16"
	INT8  = "INT8"
	FP64  = "FP64"
	INT32 = "INT32"
)

// ConvTable is the table holding convolution problems.
const ConvTable = "config"

// convColumn binds a column name to its type and its field in Conv.
type convColumn struct {
	name  string
	text  bool
	value func(*Conv) *int
	str   func(*Conv) *string
}

func intColumn(name string, field func(*Conv) *int) convColumn {
	return convColumn{name: name, value: field}
}

func textColumn(name string, field func(*Conv) *string) convColumn {
	return convColumn{name: name, text: true, str: field}
}

// convColumns is the config table layout in declaration order.
var convColumns = []convColumn{
	textColumn("layout", func(c *Conv) *string { return &c.Layout }),
	textColumn("data_type", func(c *Conv) *string { return &c.DataType }),
	textColumn("direction", func(c *Conv) *string { return (*string)(&c.Direction) }),
	intColumn("spatial_dim", func(c *Conv) *int { return &c.SpatialDim }),
	intColumn("in_channels", func(c *Conv) *int { return &c.InChannels }),
	intColumn("in_h", func(c *Conv) *int { return &c.InH }),
	intColumn("in_w", func(c *Conv) *int { return &c.InW }),
	intColumn("in_d", func(c *Conv) *int { return &c.InD }),
	intColumn("fil_h", func(c *Conv) *int { return &c.FilH }),
	intColumn("fil_w", func(c *Conv) *int { return &c.FilW }),
	intColumn("fil_d", func(c *Conv) *int { return &c.FilD }),
	intColumn("out_channels", func(c *Conv) *int { return &c.OutChannels }),
	intColumn("batchsize", func(c *Conv) *int { return &c.BatchSize }),
	intColumn("pad_h", func(c *Conv) *int { return &c.PadH }),
	intColumn("pad_w", func(c *Conv) *int { return &c.PadW }),
	intColumn("pad_d", func(c *Conv) *int { return &c.PadD }),
	intColumn("conv_stride_h", func(c *Conv) *int { return &c.StrideH }),
	intColumn("conv_stride_w", func(c *Conv) *int { return &c.StrideW }),
	intColumn("conv_stride_d", func(c *Conv) *int { return &c.StrideD }),
	intColumn("dilation_h", func(c *Conv) *int { return &c.DilationH }),
	intColumn("dilation_w", func(c *Conv) *int { return &c.DilationW }),
	intColumn("dilation_d", func(c *Conv) *int { return &c.DilationD }),
	intColumn("bias", func(c *Conv) *int { return &c.Bias }),
	intColumn("group_count", func(c *Conv) *int { return &c.GroupCount }),
}

// Conv is a convolution problem. 2D problems leave the depth fields at
// their NewConv defaults.
type Conv struct {
	Layout      string    `json:"layout"`
	DataType    string    `json:"data_type"`
	Direction   Direction `json:"direction"`
	SpatialDim  int       `json:"spatial_dim"`
	InChannels  int       `json:"in_channels"`
	InH         int       `json:"in_h"`
	InW         int       `json:"in_w"`
	InD         int       `json:"in_d"`
	FilH        int       `json:"fil_h"`
	FilW        int       `json:"fil_w"`
	FilD        int       `json:"fil_d"`
	OutChannels int       `json:"out_channels"`
	BatchSize   int       `json:"batchsize"`
	PadH        int       `json:"pad_h"`
	PadW        int       `json:"pad_w"`
	PadD        int       `json:"pad_d"`
	StrideH     int       `json:"conv_stride_h"`
	StrideW     int       `json:"conv_stride_w"`
	StrideD     int       `json:"conv_stride_d"`
	DilationH   int       `json:"dilation_h"`
	DilationW   int       `json:"dilation_w"`
	DilationD   int       `json:"dilation_d"`
	Bias        int       `json:"bias"`
	GroupCount  int       `json:"group_count"`
}

// NewConv returns a forward FP32 NCHW 2D problem with unit strides,
// unit dilations, unit depth, and one group. Callers fill in the shape.
func NewConv() Conv {
	return Conv{
		Layout:     "NCHW",
		DataType:   FP32,
		Direction:  Forward,
		SpatialDim: 2,
		InD:        1,
		FilD:       1,
		StrideH:    1,
		StrideW:    1,
		StrideD:    1,
		DilationH:  1,
		DilationW:  1,
		DilationD:  1,
		GroupCount: 1,
	}
}

// TableName implements Descriptor.
func (c Conv) TableName() string { return ConvTable }

// CreateQuery implements Descriptor.
func (c Conv) CreateQuery() string {
	var builder strings.Builder
	builder.WriteString("CREATE TABLE IF NOT EXISTS `" + ConvTable + "` (")
	builder.WriteString("`id` INTEGER PRIMARY KEY ASC")
	for _, column := range convColumns {
		sqlType := "INT"
		if column.text {
			sqlType = "TEXT"
		}
		builder.WriteString(", `" + column.name + "` " + sqlType + " NOT NULL")
	}
	builder.WriteString(");")
	builder.WriteString("CREATE UNIQUE INDEX IF NOT EXISTS `idx_" + ConvTable + "` ON " + ConvTable + "(")
	builder.WriteString(strings.Join(c.FieldNames(), ", "))
	builder.WriteString(");")
	return builder.String()
}

// FieldNames implements Descriptor.
func (c Conv) FieldNames() []string {
	names := make([]string, len(convColumns))
	for i, column := range convColumns {
		names[i] = column.name
	}
	return names
}

// FieldValues implements Descriptor.
func (c Conv) FieldValues() []string {
	values := make([]string, len(convColumns))
	for i, column := range convColumns {
		if column.text {
			values[i] = *column.str(&c)
		} else {
			values[i] = strconv.Itoa(*column.value(&c))
		}
	}
	return values
}

// ConvFromFields rebuilds a Conv from column values, as read back from
// the config table. Every column must be present.
func ConvFromFields(fields map[string]string) (Conv, error) {
	var conv Conv
	for _, column := range convColumns {
		text, ok := fields[column.name]
		if !ok {
			return Conv{}, fmt.Errorf("problem: missing field %q", column.name)
		}
		if column.text {
			*column.str(&conv) = text
			continue
		}
		value, err := strconv.Atoi(text)
		if err != nil {
			return Conv{}, fmt.Errorf("problem: field %q: %w", column.name, err)
		}
		*column.value(&conv) = value
	}
	return conv, nil
}

// Validate reports every field that cannot describe a convolution.
func (c Conv) Validate() error {
	var errs []error
	if c.Layout == "" {
		errs = append(errs, errors.New("layout is required"))
	}
	switch c.DataType {
	case FP32, FP16, BF16, INT8, FP64, INT32:
	default:
		errs = append(errs, fmt.Errorf("unknown data_type %q", c.DataType))
	}
	switch c.Direction {
	case Forward, BackwardData, BackwardWeight:
	default:
		errs = append(errs, fmt.Errorf("unknown direction %q (want F, B or W)", c.Direction))
	}
	if c.SpatialDim != 2 && c.SpatialDim != 3 {
		errs = append(errs, fmt.Errorf("spatial_dim %d must be 2 or 3", c.SpatialDim))
	}
	positive := map[string]int{
		"in_channels":  c.InChannels,
		"out_channels": c.OutChannels,
		"batchsize":    c.BatchSize,
		"in_h":         c.InH,
		"in_w":         c.InW,
		"fil_h":        c.FilH,
		"fil_w":        c.FilW,
		"group_count":  c.GroupCount,
	}
	for _, column := range convColumns {
		if value, ok := positive[column.name]; ok && value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", column.name, value))
		}
	}
	if c.GroupCount > 0 && c.InChannels%c.GroupCount != 0 {
		errs = append(errs, fmt.Errorf("in_channels %d not divisible by group_count %d", c.InChannels, c.GroupCount))
	}
	if len(errs) > 0 {
		return fmt.Errorf("problem: invalid convolution: %w", errors.Join(errs...))
	}
	return nil
}

// String returns a compact key such as
// "64-56x56-3x3-128-n16-p1x1-s1x1-d1x1-g1-NCHW-FP32-F". 3D problems
// include the depth in each triple.
func (c Conv) String() string {
	dims := func(h, w, d int) string {
		if c.SpatialDim == 3 {
			return fmt.Sprintf("%dx%dx%d", d, h, w)
		}
		return fmt.Sprintf("%dx%d", h, w)
	}
	return fmt.Sprintf("%d-%s-%s-%d-n%d-p%s-s%s-d%s-g%d-%s-%s-%s",
		c.InChannels,
		dims(c.InH, c.InW, c.InD),
		dims(c.FilH, c.FilW, c.FilD),
		c.OutChannels,
		c.BatchSize,
		dims(c.PadH, c.PadW, c.PadD),
		dims(c.StrideH, c.StrideW, c.StrideD),
		dims(c.DilationH, c.DilationW, c.DilationD),
		c.GroupCount,
		c.Layout,
		c.DataType,
		c.Direction,
	)
}

package service

import (
	"fmt"
	"io"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// CellIOService frames cells on a byte stream. Every read and write moves
// exactly one fixed-size cell; partial frames surface as errors from the
// underlying reader.
type CellIOService interface {
	// ReadCell blocks until one full cell arrives.
	ReadCell(r io.Reader) (*vo.Cell, error)

	// WriteCell sends one cell. Concurrent writers on the same stream
	// must serialize above this call.
	WriteCell(w io.Writer, c *vo.Cell) error
}

type cellIOServiceImpl struct{}

// NewCellIOService returns a codec for fixed-size cell frames.
func NewCellIOService() CellIOService {
	return cellIOServiceImpl{}
}

func (cellIOServiceImpl) ReadCell(r io.Reader) (*vo.Cell, error) {
	buf := make([]byte, vo.CellSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	c, err := vo.DecodeCell(buf)
	if err != nil {
		return nil, fmt.Errorf("read cell: %w", err)
	}
	return c, nil
}

func (cellIOServiceImpl) WriteCell(w io.Writer, c *vo.Cell) error {
	buf, err := vo.EncodeCell(c)
	if err != nil {
		return fmt.Errorf("write cell: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

package core

// SPILine identifies a hardware SPI peripheral used as a link slave
type SPILine uint8

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// SPISlaveConfig holds the line parameters for a slave peripheral
type SPISlaveConfig struct {
	Line SPILine
	Mode SPIMode
	Rate uint32 // Master clock in Hz, used to size the peripheral prescaler
}

// SPISlaveTransfer describes one armed transaction.
// A nil Out or In disables that direction for the transaction.
type SPISlaveTransfer struct {
	Out []byte // Bytes shifted out on MISO
	In  []byte // Receives bytes from MOSI, up to len(In)

	// BuffersSet is called once the DMA channels are armed
	BuffersSet func()

	// Done is called from interrupt context when the master ends the
	// transaction (chip select released), with the byte counts moved in
	// each direction
	Done func(outLen, inLen int)
}

// SPISlaveDriver is the abstract SPI slave peripheral the link layer drives.
// Platform-specific implementations handle the registers and DMA.
type SPISlaveDriver interface {
	// Configure sets up the peripheral and its pins
	Configure(cfg SPISlaveConfig) error

	// Transfer arms the next transaction. It must not block; completion is
	// reported through xfer.Done.
	Transfer(xfer *SPISlaveTransfer) error

	// Disable stops the peripheral and aborts any armed transaction without
	// calling Done
	Disable() error
}

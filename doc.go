// Package norflash drives serial NOR flash chips of the Winbond W25Q family
// and compatibles over a queued half-duplex SPI bus.
//
// A [Flash] is bound to one [Variant], which fixes the read command and the
// number of data lines used for it. Init resets the chip, resolves the
// geometry from the configuration, the SFDP table or the JEDEC ID, and enters
// the variant's mode. Transactions are pipelined up to Config.QueueSize deep
// and drained before any result is used.
//
//	f := norflash.New(bus, norflash.QuadIO)
//	if err := f.Init(norflash.DefaultConfig()); err != nil {
//		return err
//	}
//	defer f.Term()
//	err := f.Read(0, buf)
//
// The transports in package spibus only frame single-lane transactions, so
// every variant except Standard needs a controller with dual/quad support.
//
// # References:
//
// SPI Flash
//   - [W25Q128]: W25Q128JV-DTR Winbond Serial Flash Memory (https://www.winbond.com/resource-files/W25Q128JV_DTR%20RevD%2012232024%20Plus.pdf)
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet (could not find the official public URL)
//   - [JESD216]: JEDEC Serial Flash Discoverable Parameters (https://www.jedec.org/standards-documents/docs/jesd216b)
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//
// Boards
//   - [EB82]: iCEstick User Manual (https://www.latticesemi.com/view_document?document_id=50701)
package norflash

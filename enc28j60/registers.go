package enc28j60

// Register addresses encode the bank in bits 5-6 and a MAC/MII flag in bit 7. Registers at 0x1B-0x1F
// are present in every bank.
const (
	ADDR_MASK = 0x1F
	BANK_MASK = 0x60
	SPRD_MASK = 0x80
)

// All-bank registers
const (
	EIE   = 0x1B
	EIR   = 0x1C
	ESTAT = 0x1D
	ECON2 = 0x1E
	ECON1 = 0x1F
)

// Bank 0 registers
const (
	ERDPTL   = 0x00 | 0x00
	ERDPTH   = 0x01 | 0x00
	EWRPTL   = 0x02 | 0x00
	EWRPTH   = 0x03 | 0x00
	ETXSTL   = 0x04 | 0x00
	ETXSTH   = 0x05 | 0x00
	ETXNDL   = 0x06 | 0x00
	ETXNDH   = 0x07 | 0x00
	ERXSTL   = 0x08 | 0x00
	ERXSTH   = 0x09 | 0x00
	ERXNDL   = 0x0A | 0x00
	ERXNDH   = 0x0B | 0x00
	ERXRDPTL = 0x0C | 0x00
	ERXRDPTH = 0x0D | 0x00
	ERXWRPTL = 0x0E | 0x00
	ERXWRPTH = 0x0F | 0x00
	EDMASTL  = 0x10 | 0x00
	EDMASTH  = 0x11 | 0x00
	EDMANDL  = 0x12 | 0x00
	EDMANDH  = 0x13 | 0x00
	EDMADSTL = 0x14 | 0x00
	EDMADSTH = 0x15 | 0x00
	EDMACSL  = 0x16 | 0x00
	EDMACSH  = 0x17 | 0x00
)

// Bank 1 registers
const (
	EHT0    = 0x00 | 0x20
	EPMM0   = 0x08 | 0x20
	EPMM1   = 0x09 | 0x20
	EPMCSL  = 0x10 | 0x20
	EPMCSH  = 0x11 | 0x20
	EPMOL   = 0x14 | 0x20
	EPMOH   = 0x15 | 0x20
	ERXFCON = 0x18 | 0x20
	EPKTCNT = 0x19 | 0x20
)

// Bank 2 registers
const (
	MACON1   = 0x00 | 0x40 | 0x80
	MACON2   = 0x01 | 0x40 | 0x80
	MACON3   = 0x02 | 0x40 | 0x80
	MACON4   = 0x03 | 0x40 | 0x80
	MABBIPG  = 0x04 | 0x40 | 0x80
	MAIPGL   = 0x06 | 0x40 | 0x80
	MAIPGH   = 0x07 | 0x40 | 0x80
	MACLCON1 = 0x08 | 0x40 | 0x80
	MACLCON2 = 0x09 | 0x40 | 0x80
	MAMXFLL  = 0x0A | 0x40 | 0x80
	MAMXFLH  = 0x0B | 0x40 | 0x80
	MICMD    = 0x12 | 0x40 | 0x80
	MIREGADR = 0x14 | 0x40 | 0x80
	MIWRL    = 0x16 | 0x40 | 0x80
	MIWRH    = 0x17 | 0x40 | 0x80
	MIRDL    = 0x18 | 0x40 | 0x80
	MIRDH    = 0x19 | 0x40 | 0x80
)

// Bank 3 registers
const (
	MAADR1  = 0x00 | 0x60 | 0x80
	MAADR0  = 0x01 | 0x60 | 0x80
	MAADR3  = 0x02 | 0x60 | 0x80
	MAADR2  = 0x03 | 0x60 | 0x80
	MAADR5  = 0x04 | 0x60 | 0x80
	MAADR4  = 0x05 | 0x60 | 0x80
	EBSTSD  = 0x06 | 0x60
	EBSTCON = 0x07 | 0x60
	EBSTCSL = 0x08 | 0x60
	EBSTCSH = 0x09 | 0x60
	MISTAT  = 0x0A | 0x60 | 0x80
	EREVID  = 0x12 | 0x60
	ECOCON  = 0x15 | 0x60
	EFLOCON = 0x17 | 0x60
	EPAUSL  = 0x18 | 0x60
	EPAUSH  = 0x19 | 0x60
)

// PHY registers
const (
	PHCON1  = 0x00
	PHSTAT1 = 0x01
	PHHID1  = 0x02
	PHHID2  = 0x03
	PHCON2  = 0x10
	PHSTAT2 = 0x11
	PHIE    = 0x12
	PHIR    = 0x13
	PHLCON  = 0x14
)

// ERXFCON bits
const (
	ERXFCON_UCEN  = 0x80
	ERXFCON_ANDOR = 0x40
	ERXFCON_CRCEN = 0x20
	ERXFCON_PMEN  = 0x10
	ERXFCON_MPEN  = 0x08
	ERXFCON_HTEN  = 0x04
	ERXFCON_MCEN  = 0x02
	ERXFCON_BCEN  = 0x01
)

// EIE bits
const (
	EIE_INTIE  = 0x80
	EIE_PKTIE  = 0x40
	EIE_DMAIE  = 0x20
	EIE_LINKIE = 0x10
	EIE_TXIE   = 0x08
	EIE_WOLIE  = 0x04
	EIE_TXERIE = 0x02
	EIE_RXERIE = 0x01
)

// EIR bits
const (
	EIR_PKTIF  = 0x40
	EIR_DMAIF  = 0x20
	EIR_LINKIF = 0x10
	EIR_TXIF   = 0x08
	EIR_WOLIF  = 0x04
	EIR_TXERIF = 0x02
	EIR_RXERIF = 0x01
)

// ESTAT bits
const (
	ESTAT_INT     = 0x80
	ESTAT_LATECOL = 0x10
	ESTAT_RXBUSY  = 0x04
	ESTAT_TXABRT  = 0x02
	ESTAT_CLKRDY  = 0x01
)

// ECON2 bits
const (
	ECON2_AUTOINC = 0x80
	ECON2_PKTDEC  = 0x40
	ECON2_PWRSV   = 0x20
	ECON2_VRPS    = 0x08
)

// ECON1 bits
const (
	ECON1_TXRST  = 0x80
	ECON1_RXRST  = 0x40
	ECON1_DMAST  = 0x20
	ECON1_CSUMEN = 0x10
	ECON1_TXRTS  = 0x08
	ECON1_RXEN   = 0x04
	ECON1_BSEL1  = 0x02
	ECON1_BSEL0  = 0x01
)

// MACON1 bits
const (
	MACON1_LOOPBK  = 0x10
	MACON1_TXPAUS  = 0x08
	MACON1_RXPAUS  = 0x04
	MACON1_PASSALL = 0x02
	MACON1_MARXEN  = 0x01
)

// MACON3 bits
const (
	MACON3_PADCFG2 = 0x80
	MACON3_PADCFG1 = 0x40
	MACON3_PADCFG0 = 0x20
	MACON3_TXCRCEN = 0x10
	MACON3_PHDRLEN = 0x08
	MACON3_HFRMLEN = 0x04
	MACON3_FRMLNEN = 0x02
	MACON3_FULDPX  = 0x01
)

// MICMD bits
const (
	MICMD_MIISCAN = 0x02
	MICMD_MIIRD   = 0x01
)

// MISTAT bits
const (
	MISTAT_NVALID = 0x04
	MISTAT_SCAN   = 0x02
	MISTAT_BUSY   = 0x01
)

// PHY register bits
const (
	PHCON1_PRST    = 0x8000
	PHCON1_PLOOPBK = 0x4000
	PHCON1_PPWRSV  = 0x0800
	PHCON1_PDPXMD  = 0x0100
	PHSTAT1_PFDPX  = 0x1000
	PHSTAT1_PHDPX  = 0x0800
	PHSTAT1_LLSTAT = 0x0004
	PHSTAT1_JBSTAT = 0x0002
	PHSTAT2_LSTAT  = 0x0400
	PHCON2_FRCLINK = 0x4000
	PHCON2_TXDIS   = 0x2000
	PHCON2_JABBER  = 0x0400
	PHCON2_HDLDIS  = 0x0100
)

// Packet control byte bits, prepended to every frame in the transmit buffer
const (
	PKTCTRL_PHUGEEN   = 0x08
	PKTCTRL_PPADEN    = 0x04
	PKTCTRL_PCRCEN    = 0x02
	PKTCTRL_POVERRIDE = 0x01
)

// SPI operation codes
const (
	READ_CTRL_REG  = 0x00
	READ_BUF_MEM   = 0x3A
	WRITE_CTRL_REG = 0x40
	WRITE_BUF_MEM  = 0x7A
	BIT_FIELD_SET  = 0x80
	BIT_FIELD_CLR  = 0xA0
	SOFT_RESET     = 0xFF
)

// Buffer memory layout. The receive ring end must be odd (Rev. B1-B7 silicon errata, "Memory (Ethernet
// Buffer)"). One byte is left between the ring and the pool so the first block can be preceded by a
// transmit control byte.
const (
	RXSTART_INIT = 0x0000
	RXSTOP_INIT  = 0x1FFF - 0x1800
	TXSTART_INIT = RXSTOP_INIT + 1
	TXSTOP_INIT  = 0x1FFF
	MEMORY_SIZE  = 0x2000

	MAX_FRAMELEN = 1500
)

// Receive status vector bits
const (
	RSV_RXOK = 0x80
)

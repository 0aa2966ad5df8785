/*
Package rectable implements an immutable, record-oriented storage
format for large write-once/read-many datasets. Records are opaque
byte payloads, addressed by their dense 0-based write position, packed
into fixed-size groups which form the unit of compression and I/O.
Stores support O(log groups) random access by index as well as
streaming iteration with asynchronous group readahead.

Data Structure Documentation

Store

A store contains a series of group blobs followed by a footer and a
fixed-size trailer.

    Store layout:
    +---------+---------+---------+--------+---------+
    | group 1 |   ...   | group n | footer | trailer |
    +---------+---------+---------+--------+---------+

    Trailer (last 20 bytes of the file):
    +-------------------------+-------------------+-----------------+
    | footer offset (8 bytes) | version (4 bytes) | magic (8 bytes) |
    +-------------------------+-------------------+-----------------+

Footer

The footer carries the file-level metadata followed by one index
entry per group. The first entry stores its start and offset as full
values, subsequent entries delta-encode both against their
predecessor.

    Footer:
    +------------------------+----------------------+------------------+------------------+-----------------------+---------+-------+---------+
    | record count (8 bytes) | group size (8 bytes) | codec id (1 byte)| level (4 bytes)  | group count (8 bytes) | entry 1 |  ...  | entry n |
    +------------------------+----------------------+------------------+------------------+-----------------------+---------+-------+---------+

    Index entry:
    +----------------------+----------------+-----------------------+-----------------+------------------+---------------+
    | start (varint,delta) | count (varint) | offset (varint,delta) | length (varint) | raw len (varint) | crc (4 bytes) |
    +----------------------+----------------+-----------------------+-----------------+------------------+---------------+

Group

A group packs up to group-size consecutive records into one buffer
which is compressed as a whole with the store's codec. The final group
may hold fewer records. The stored checksum covers the compressed
blob; the raw length verifies the decoded buffer.

    Group buffer (before compression):
    +------------------------+------------------+------------------------+------------------+-------+
    | record len 1 (varint)  | record 1 (bytes) | record len 2 (varint)  | record 2 (bytes) |  ...  |
    +------------------------+------------------+------------------------+------------------+-------+
*/
package rectable

package sqlinline

const QSelectVendorCredential = `--sql 5b1f0c02-8c3d-4f5a-9a27-0d3e6d4f2b91
select api_key
from vendor_credentials
where vendor = $1::text;
`

const QUpsertVendorCredential = `--sql 9e7a4d36-1b52-4c8e-b0f4-7c1a9d85e062
insert into vendor_credentials (vendor, api_key, properties, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (vendor) do update
    set api_key = excluded.api_key,
        properties = excluded.properties,
        updated_at = now();
`
